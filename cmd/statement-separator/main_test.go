package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/madeinoz67/bank-statement-separator/internal/paperless"
)

func TestInitExitCode(t *testing.T) {
	dmsErr := &paperless.DmsError{Op: "get /api/documents/", StatusCode: 502, Message: "bad gateway"}

	assert.Equal(t, exitDMSError, initExitCode(dmsErr))
	assert.Equal(t, exitDMSError, initExitCode(fmt.Errorf("connect: %w", dmsErr)))
	assert.Equal(t, exitConfigError, initExitCode(errors.New("unknown provider")))
}

func TestIsDMSError(t *testing.T) {
	assert.True(t, isDMSError(&paperless.DmsError{Op: "download"}))
	assert.False(t, isDMSError(errors.New("no such file")))
	assert.False(t, isDMSError(nil))
}
