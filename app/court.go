package app

// Court geometry in screen pixels. The top band above arenaMinY holds the
// score line.
const (
	arenaMinX = 40
	arenaMaxX = 280
	arenaMinY = 16
	arenaMaxY = 240

	paddleLenD2 = 32
	paddleWidth = 4
	paddleY     = arenaMaxY - 12
	paddleStep  = 5

	ballSize  = 4
	ballSpeed = 2
)

type rally uint8

const (
	rallyNone rally = iota
	rallyHit
	rallyMiss
)

// court is the game state. Threads touch it only while holding the state
// semaphore.
type court struct {
	paddle       int16
	ballX, ballY int16
	velX, velY   int16
	score, best  uint16
	misses       uint16
}

func newCourt() court {
	c := court{
		paddle: (arenaMinX + arenaMaxX) / 2,
		velX:   ballSpeed,
	}
	c.serve()
	return c
}

func (c *court) serve() {
	c.ballX = (arenaMinX+arenaMaxX)/2 - ballSize/2
	c.ballY = arenaMinY + 8
	c.velY = ballSpeed
}

// movePaddle shifts the paddle by dx, keeping it inside the walls.
func (c *court) movePaddle(dx int16) {
	p := c.paddle + dx
	p = max(p, arenaMinX+paddleLenD2)
	p = min(p, arenaMaxX-paddleLenD2)
	c.paddle = p
}

// stepBall advances the ball one step and reports whether it was returned
// by the paddle or lost past it.
func (c *court) stepBall() rally {
	x, y := c.ballX+c.velX, c.ballY+c.velY

	if x < arenaMinX {
		x, c.velX = arenaMinX, -c.velX
	} else if x+ballSize > arenaMaxX {
		x, c.velX = arenaMaxX-ballSize, -c.velX
	}
	if y < arenaMinY {
		y, c.velY = arenaMinY, -c.velY
	}

	if c.velY > 0 && c.ballY+ballSize <= paddleY && y+ballSize >= paddleY &&
		x+ballSize > c.paddle-paddleLenD2 && x < c.paddle+paddleLenD2 {
		c.ballX, c.ballY = x, paddleY-ballSize
		c.velY = -c.velY
		c.score++
		c.best = max(c.best, c.score)
		return rallyHit
	}

	if y >= arenaMaxY {
		c.misses++
		c.score = 0
		c.serve()
		return rallyMiss
	}

	c.ballX, c.ballY = x, y
	return rallyNone
}
