package core_test

import (
	"net/mail"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/psms/assets"
	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/testutil"
)

func TestParseEmailTemplates(t *testing.T) {
	conf := core.NewTestConfig()
	tmpls, err := core.ParseEmailTemplates(assets.EmailTemplates(), conf, testutil.NopLogger{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		data     map[string]string
		wantText []string
	}{
		{
			name: "password_reset",
			data: map[string]string{"Name": "Jane", "UID": "dWlk", "Token": "tok-en"},
			wantText: []string{
				"Hi Jane,",
				conf.FrontendBaseURL + "/password-reset?uid=dWlk&token=tok-en",
				conf.FrontendBaseURL, // layout footer
			},
		},
		{
			name: "feedback_received",
			data: map[string]string{
				"StudentName": "Student B", "LecturerName": "Lecturer A", "ProjectID": "p1",
				"ProjectName": "Capstone", "Filename": "proposal.pdf", "Message": "Looks good",
			},
			wantText: []string{"Hi Student B,", "Lecturer A", "\"proposal.pdf\"", "Capstone", "Looks good", "The PSMS team"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &core.EmailMessage{
				To:           []mail.Address{{Name: "Jane", Address: "jane@test.cd"}},
				TemplateName: tt.name,
				TemplateData: tt.data,
			}
			require.NoError(t, msg.Render(tmpls))
			assert.True(t, msg.HasContent())
			assert.NotEmpty(t, msg.HTMLContent)
			assert.Contains(t, msg.HTMLContent, "<!DOCTYPE html>")
			for _, want := range tt.wantText {
				assert.Contains(t, msg.TextContent, want)
			}
		})
	}

	t.Run("missing data", func(t *testing.T) {
		msg := &core.EmailMessage{TemplateName: "password_reset", TemplateData: map[string]string{"Name": "Jane"}}
		assert.Error(t, msg.Render(tmpls))
	})
}

func TestParseEmailTemplates_missingLayout(t *testing.T) {
	fsys := fstest.MapFS{
		"welcome.txt": {Data: []byte(`{{define "content"}}Hi{{end}}`)},
	}

	t.Run("strict", func(t *testing.T) {
		_, err := core.ParseEmailTemplates(fsys, core.NewTestConfig(), testutil.NopLogger{})
		assert.Error(t, err)
	})

	t.Run("lenient", func(t *testing.T) {
		conf := core.NewTestConfig()
		conf.TestMode = false
		conf.Debug = false

		tmpls, err := core.ParseEmailTemplates(fsys, conf, testutil.NopLogger{})
		require.NoError(t, err)

		msg := &core.EmailMessage{TemplateName: "welcome"}
		require.NoError(t, msg.Render(tmpls))
		assert.False(t, msg.HasContent())
	})
}
