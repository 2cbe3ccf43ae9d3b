package main

import (
	"github.com/gogpu/frameloop"
	"github.com/gogpu/frameloop/backend/native"
)

// triangleVertices is two triangles side by side in clip space.
var triangleVertices = []native.Vertex{
	{X: -0.9, Y: -0.5, R: 1},
	{X: -0.1, Y: -0.5, G: 1},
	{X: -0.5, Y: 0.5, B: 1},

	{X: 0.1, Y: -0.5, R: 1, G: 1},
	{X: 0.9, Y: -0.5, G: 1, B: 1},
	{X: 0.5, Y: 0.5, R: 1, B: 1},
}

// trianglePair draws triangleVertices every frame.
type trianglePair struct {
	vertices frameloop.BufferView
	frames   uint64
}

func (s *trianglePair) Update(info frameloop.FrameInfo) {
	s.frames = info.Frame + 1
}

func (s *trianglePair) Draw(p *frameloop.Pass) {
	p.SetVertexBuffer(0, s.vertices)
	p.Draw(uint32(len(triangleVertices)), 1, 0, 0)
}
