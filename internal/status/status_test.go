package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, Initializing, tr.Report().State)

	tr.SetOK("3 devices")
	assert.Equal(t, OK, tr.Report().State)
	assert.Equal(t, "3 devices", tr.Report().Message)

	tr.SetFatal(errors.New("protocol unresolved"))
	assert.True(t, tr.IsFatal())

	// Fatal is terminal
	tr.SetOK("recovered")
	tr.SetFatal(errors.New("second"))
	r := tr.Report()
	assert.Equal(t, Fatal, r.State)
	assert.Equal(t, "protocol unresolved", r.Message)
}
