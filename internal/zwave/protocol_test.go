package zwave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveProtocol(t *testing.T) {
	tests := []struct {
		version string
		want    Protocol
		wantErr bool
	}{
		{"3.0.8.0", ProtocolLegacyWithModernSetter, false},
		{" 3.0.1.252 ", ProtocolLegacyWithModernSetter, false},
		{"4.0.0.0", ProtocolNativeModern, false},
		{"4", ProtocolNativeModern, false},
		{"2.5.0.0", ProtocolUnknown, true},
		{"5.0.0.0", ProtocolUnknown, true},
		{"", ProtocolUnknown, true},
		{"v3.0", ProtocolUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			p, err := ResolveProtocol(tt.version)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrProtocolUnresolved)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestProtocol_Convention(t *testing.T) {
	assert.True(t, ProtocolLegacyWithModernSetter.Legacy())
	assert.True(t, ProtocolLegacyWithoutModernSetter.Legacy())
	assert.False(t, ProtocolNativeModern.Legacy())

	assert.Equal(t, FuncModernSet, ProtocolLegacyWithModernSetter.SetterFunction())
	assert.Equal(t, FuncLegacySet, ProtocolLegacyWithoutModernSetter.SetterFunction())
	assert.Equal(t, FuncModernSet, ProtocolNativeModern.SetterFunction())
}

func TestSetOutcome(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   bool
	}{
		{"success string", "Success", true},
		{"failed string", "Failed", false},
		{"queued string", "Queued", false},
		{"enum success", ConfigResultSuccess, true},
		{"enum queued", ConfigResultQueued, false},
		{"json number success", float64(1), true},
		{"json number failed", float64(3), false},
		{"int success", 1, true},
		{"bool", true, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _ := setOutcome(tt.result)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestToInt(t *testing.T) {
	v, err := toInt(float64(5))
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = toInt("7")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = toInt(1.5)
	assert.Error(t, err)

	_, err = toInt(nil)
	assert.Error(t, err)

	_, err = toInt([]int{1})
	assert.Error(t, err)
}
