package renderer

import (
	"context"
	"errors"
)

// Unavailable returns a Renderer whose sessions can never open. The stock
// binary ships with it; deployments link a real engine and pass it to the
// app instead.
func Unavailable(reason string) Renderer {
	return unavailable{err: errors.New("renderer unavailable: " + reason)}
}

type unavailable struct{ err error }

func (u unavailable) NewSession(ctx context.Context) (Session, error) { return nil, u.err }
