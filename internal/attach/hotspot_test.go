package attach

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/diag-attach/internal/model"
)

func TestEncodeRequest(t *testing.T) {
	assert.Equal(t, []byte("1\x00properties\x00\x00\x00\x00"), encodeRequest("properties"))
	assert.Equal(t,
		[]byte("1\x00load\x00instrument\x00false\x00/a.jar=opts\x00"),
		encodeRequest("load", "instrument", "false", "/a.jar=opts"))
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr string
	}{
		{name: "ok", reply: "0\nbody line\n", want: "body line\n"},
		{name: "ok without body", reply: "0", want: ""},
		{name: "status error", reply: "101\nOperation not supported\n", wantErr: "status 101: Operation not supported"},
		{name: "status error without body", reply: "1\n", wantErr: "no detail"},
		{name: "malformed", reply: "garbage\n", wantErr: "malformed reply status"},
		{name: "empty", reply: "", wantErr: "malformed reply status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseReply("cmd", []byte(tt.reply))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckLoadResult(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "bare zero", body: "0\n"},
		{name: "return code zero", body: "return code: 0\n"},
		{name: "zero with trailing text", body: "return code: 0\nagent started\n"},
		{name: "empty", body: "", wantErr: true},
		{name: "blank", body: "  \n", wantErr: true},
		{name: "rejection text", body: "Agent JAR not found or no Agent-Class attribute\n", wantErr: true},
		{name: "bare non-zero", body: "100\n", wantErr: true},
		{name: "return code non-zero", body: "return code: -1\njava.lang.IllegalStateException\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkLoadResult(tt.body)
			if tt.wantErr {
				require.Error(t, err)
				if trimmed := strings.TrimSpace(tt.body); trimmed != "" {
					assert.Contains(t, err.Error(), trimmed)
				}
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseProperties(t *testing.T) {
	text := "#Sat Oct 17 10:00:00 UTC 2026\n" +
		"java.specification.version=17\n" +
		"java.home=/usr/lib/jvm/java-17\n" +
		"! bang comment\n" +
		"\n" +
		"path.separator=\\:\n" +
		"line.separator=\\n\n" +
		"user.dir = /srv/app\n" +
		"colon.key:value\n" +
		"space.key value with spaces\n" +
		"escaped\\=key=v\n" +
		"unicode=caf\\u00e9\n" +
		"multi=first \\\n" +
		"    second\n" +
		"empty=\n"

	props := parseProperties(text)

	assert.Equal(t, "17", props["java.specification.version"])
	assert.Equal(t, "/usr/lib/jvm/java-17", props["java.home"])
	assert.Equal(t, ":", props["path.separator"])
	assert.Equal(t, "\n", props["line.separator"])
	assert.Equal(t, "/srv/app", props["user.dir"])
	assert.Equal(t, "value", props["colon.key"])
	assert.Equal(t, "value with spaces", props["space.key"])
	assert.Equal(t, "v", props["escaped=key"])
	assert.Equal(t, "café", props["unicode"])
	assert.Equal(t, "first second", props["multi"])
	v, ok := props["empty"]
	assert.True(t, ok)
	assert.Empty(t, v)
	assert.NotContains(t, props, "! bang comment")
}

func TestParseNSpid(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   string
	}{
		{name: "host namespace", status: "Name:\tjava\nPid:\t4242\nNSpid:\t4242\n", want: "4242"},
		{name: "container", status: "Name:\tjava\nNSpid:\t4242\t1\nPPid:\t1\n", want: "1"},
		{name: "old kernel", status: "Name:\tjava\nPid:\t4242\n", want: ""},
		{name: "malformed", status: "NSpid:\tabc\n", want: ""},
		{name: "empty", status: "NSpid:\n", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseNSpid(tt.status))
		})
	}
}

func descriptorWithID(id string) model.Descriptor {
	return model.Descriptor{ID: id}
}
