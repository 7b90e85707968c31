package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	t.Run("parses pair request", func(t *testing.T) {
		req, err := ParseRequest([]byte(`{"action":"pair","code":"042391","client_name":"Desktop App"}` + "\n"))
		require.NoError(t, err)
		assert.Equal(t, ActionPair, req.Action)
		require.NotNil(t, req.Code)
		assert.Equal(t, "042391", *req.Code)
		assert.Equal(t, "Desktop App", StringValue(req.ClientName))
		assert.Nil(t, req.Token)
	})

	t.Run("ignores unknown fields", func(t *testing.T) {
		req, err := ParseRequest([]byte(`{"action":"ping","token":"t","extra":1}`))
		require.NoError(t, err)
		assert.Equal(t, ActionPing, req.Action)
		assert.Equal(t, "t", StringValue(req.Token))
	})

	t.Run("keeps unknown action for the dispatcher", func(t *testing.T) {
		req, err := ParseRequest([]byte(`{"action":"self_destruct"}`))
		require.NoError(t, err)
		assert.Equal(t, Action("self_destruct"), req.Action)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		cases := map[string]string{
			"not json":       `hello`,
			"missing action": `{"code":"123456"}`,
			"null action":    `{"action":null}`,
			"numeric action": `{"action":7}`,
			"numeric code":   `{"action":"pair","code":123456}`,
			"array":          `["pair"]`,
			"truncated":      `{"action":"pa`,
		}
		for name, line := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := ParseRequest([]byte(line))
				assert.Error(t, err)
			})
		}
	})
}

func TestResponse(t *testing.T) {
	t.Run("WithIdentity copies identity fields", func(t *testing.T) {
		id := RobotIdentity{RobotName: "Sourccey", Nickname: "sourccey", RobotType: "sourccey", ServicePort: 42112}
		resp := Response{OK: true, Message: "Robot reachable"}.WithIdentity(id)
		assert.Equal(t, "Sourccey", resp.RobotName)
		assert.Equal(t, 42112, resp.ServicePort)
	})

	t.Run("EncodeLine omits empty optionals and ends in newline", func(t *testing.T) {
		line, err := EncodeLine(Response{OK: false, Message: "Unsupported action", ServicePort: 42112})
		require.NoError(t, err)
		assert.Equal(t, `{"ok":false,"message":"Unsupported action","service_port":42112}`+"\n", string(line))
	})

	t.Run("ParseResponse reads a line", func(t *testing.T) {
		resp, err := ParseResponse([]byte(`{"ok":true,"message":"Pairing successful","token":"abc"}` + "\n"))
		require.NoError(t, err)
		assert.True(t, resp.OK)
		assert.Equal(t, "abc", resp.Token)
	})
}

func TestDownloadJobKey(t *testing.T) {
	assert.Equal(t, "org/model/policy", DownloadJobKey("org/model", "policy"))
	assert.Equal(t, "org/model/policy", DownloadJob{RepoID: "org/model", ModelName: "policy"}.Key())
}

func TestDownloadStatusTerminal(t *testing.T) {
	assert.False(t, DownloadStatusQueued.Terminal())
	assert.False(t, DownloadStatusDownloading.Terminal())
	assert.True(t, DownloadStatusDownloaded.Terminal())
	assert.True(t, DownloadStatusFailed.Terminal())
}
