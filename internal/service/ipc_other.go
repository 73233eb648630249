//go:build !linux

package service

import (
	"context"

	"github.com/gajzzs/dropship/internal/errors"
)

// SendControl is only implemented where a background daemon exists.
func SendControl(ctx context.Context, name, cmd string) (string, error) {
	return "", errors.New(errors.KindUnavailable, "no control channel on this platform")
}
