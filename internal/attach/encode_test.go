package attach

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeArg(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "agent.jar", want: "agent.jar"},
		{name: "absolute path", in: "/opt/diag/agent.jar", want: "%2Fopt%2Fdiag%2Fagent.jar"},
		{name: "space", in: "/my dir/a.jar", want: "%2Fmy+dir%2Fa.jar"},
		{name: "separators", in: "a;b=c", want: "a%3Bb%3Dc"},
		{name: "non ascii", in: "/données/a.jar", want: "%2Fdonn%C3%A9es%2Fa.jar"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeArg(tt.in))
			assert.Equal(t, tt.in, DecodeArg(EncodeArg(tt.in)))
		})
	}
}

func TestEncodeArg_InvalidUTF8Unmodified(t *testing.T) {
	in := "/opt/\xff\xfe/agent.jar"
	assert.Equal(t, in, EncodeArg(in))
}

func TestDecodeArg_Malformed(t *testing.T) {
	assert.Equal(t, "%zz", DecodeArg("%zz"))
}
