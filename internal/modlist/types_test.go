package modlist

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStatusJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status Status
		json   string
	}{
		{Downloading(), `"Downloading"`},
		{Downloaded(), `"Downloaded"`},
		{Installed(), `"Installed"`},
		{Failed("missing tracking file"), `{"Failed":"missing tracking file"}`},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			data, err := json.Marshal(tt.status)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(data))

			var got Status
			require.NoError(t, json.Unmarshal([]byte(tt.json), &got))
			assert.Equal(t, tt.status, got)
		})
	}
}

func TestStatusJSON_Rejects(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{`"Failed"`, `"Bogus"`, `{"Other":"x"}`, `{"Failed":"a","Other":"b"}`, `42`} {
		var s Status
		assert.Error(t, json.Unmarshal([]byte(raw), &s), raw)
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Failed (interrupted)", Failed("interrupted").String())
	assert.Equal(t, "Unknown", Unknown().String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}

func TestListYAML(t *testing.T) {
	t.Parallel()
	list := List{Mods: []Mod{{UID: 1, Name: "Test mod", Archives: []Archive{
		{FileUID: 2, FileName: "a.zip", Status: Failed("interrupted")},
		{FileUID: 3, FileName: "b.zip", ArchivePath: StringPtr("/staging/1/archives/b.zip"), Status: Downloaded()},
	}}}}

	data, err := yaml.Marshal(list)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "file_uid: 2")
	assert.Contains(t, out, "Failed: interrupted")
	assert.Contains(t, out, "status: Downloaded")
	assert.Contains(t, out, "archive_path: /staging/1/archives/b.zip")
	assert.Contains(t, out, "archive_path: null")
}
