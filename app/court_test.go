package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaddleStaysInArena(t *testing.T) {
	c := newCourt()
	for i := 0; i < 100; i++ {
		c.movePaddle(-paddleStep)
	}
	require.Equal(t, int16(arenaMinX+paddleLenD2), c.paddle)

	for i := 0; i < 100; i++ {
		c.movePaddle(paddleStep)
	}
	require.Equal(t, int16(arenaMaxX-paddleLenD2), c.paddle)

	c.movePaddle(-paddleStep)
	require.Equal(t, int16(arenaMaxX-paddleLenD2-paddleStep), c.paddle)
}

func TestBallBouncesOffWalls(t *testing.T) {
	c := newCourt()
	c.ballX, c.ballY = arenaMinX+1, arenaMinY+1
	c.velX, c.velY = -ballSpeed, -ballSpeed

	require.Equal(t, rallyNone, c.stepBall())
	require.Equal(t, int16(arenaMinX), c.ballX)
	require.Equal(t, int16(arenaMinY), c.ballY)
	require.Equal(t, int16(ballSpeed), c.velX)
	require.Equal(t, int16(ballSpeed), c.velY)

	c.ballX = arenaMaxX - ballSize - 1
	require.Equal(t, rallyNone, c.stepBall())
	require.Equal(t, int16(arenaMaxX-ballSize), c.ballX)
	require.Equal(t, int16(-ballSpeed), c.velX)
}

func TestPaddleReturnsBall(t *testing.T) {
	c := newCourt()
	c.paddle = 160
	c.ballX, c.ballY = 158, paddleY-ballSize-1
	c.velX, c.velY = 0, ballSpeed

	require.Equal(t, rallyHit, c.stepBall())
	require.Equal(t, int16(-ballSpeed), c.velY)
	require.Equal(t, int16(paddleY-ballSize), c.ballY)
	require.Equal(t, uint16(1), c.score)
	require.Equal(t, uint16(1), c.best)
}

func TestMissResetsScore(t *testing.T) {
	c := newCourt()
	c.score, c.best = 3, 5
	c.paddle = arenaMinX + paddleLenD2
	c.ballX, c.ballY = arenaMaxX-20, arenaMaxY-1
	c.velX, c.velY = 0, ballSpeed

	require.Equal(t, rallyMiss, c.stepBall())
	require.Equal(t, uint16(0), c.score)
	require.Equal(t, uint16(5), c.best)
	require.Equal(t, uint16(1), c.misses)
	require.Equal(t, int16(arenaMinY+8), c.ballY)
	require.Equal(t, int16(ballSpeed), c.velY)
}
