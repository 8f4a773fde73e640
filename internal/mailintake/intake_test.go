package mailintake

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeImporter struct {
	calls [][]entity.SourceFile
}

func (f *fakeImporter) ImportFiles(ctx context.Context, files []entity.SourceFile, origin entity.Origin) (*entity.ImportReport, error) {
	f.calls = append(f.calls, files)
	report := entity.NewImportReport(origin)
	report.Processed = len(files)
	return report, nil
}

type fakeLimiter struct {
	allow bool
	keys  []string
}

func (f *fakeLimiter) Allow(identifier string, maxRequests int, window time.Duration) bool {
	f.keys = append(f.keys, identifier)
	return f.allow
}

type fakeRecorder struct {
	types []string
}

func (f *fakeRecorder) Record(ctx context.Context, eventType string, details map[string]any, severity entity.Severity) {
	f.types = append(f.types, eventType)
}

const nfeBody = `<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe"><NFe/></nfeProc>`

func buildMessage(subject string, attachments ...[2]string) string {
	var b strings.Builder
	b.WriteString("From: Fornecedor <nfe@acme.com.br>\r\n")
	b.WriteString("To: fiscal@empresa.com.br\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"XYZ\"\r\n\r\n")
	b.WriteString("--XYZ\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nSegue a nota.\r\n")
	for _, a := range attachments {
		b.WriteString("--XYZ\r\n")
		b.WriteString(fmt.Sprintf("Content-Type: application/octet-stream; name=\"%s\"\r\n", a[0]))
		b.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"\r\n", a[0]))
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(a[1])) + "\r\n")
	}
	b.WriteString("--XYZ--\r\n")
	return b.String()
}

func newTestIntake(allow bool) (*Intake, *fakeImporter, *fakeLimiter, *fakeRecorder) {
	importer := &fakeImporter{}
	limiter := &fakeLimiter{allow: allow}
	recorder := &fakeRecorder{}
	cfg := DefaultConfig()
	cfg.MaxXMLSize = 1024
	return NewIntake(importer, limiter, recorder, cfg, zap.NewNop()), importer, limiter, recorder
}

func TestIntake_ProcessMessage_KeepsFiscalAttachments(t *testing.T) {
	intake, importer, _, _ := newTestIntake(true)
	raw := buildMessage("=?ISO-8859-1?Q?Nota_Fiscal_Eletr=F4nica_123?=",
		[2]string{"nota.xml", nfeBody},
		[2]string{"DANFE.PDF", "%PDF-1.4"},
		[2]string{"logo.png", "png"},
	)

	report, err := intake.ProcessMessage(context.Background(), strings.NewReader(raw))
	require.NoError(t, err)
	require.NotNil(t, report)

	require.Len(t, importer.calls, 1)
	files := importer.calls[0]
	require.Len(t, files, 2)
	assert.Equal(t, "nota.xml", files[0].Name)
	assert.Equal(t, nfeBody, string(files[0].Data))
	assert.Equal(t, "DANFE.PDF", files[1].Name)
	assert.Equal(t, entity.OriginEmail, report.Origin)
}

func TestIntake_ProcessMessage_SubjectFilter(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    bool
	}{
		{"plain keyword", "Envio de DANFE", true},
		{"accented nota fiscal", "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte("Sua Nota Fiscal chegou")) + "?=", true},
		{"windows-1252 word", "=?windows-1252?Q?Documento_NF=2De_n=BA_55?=", true},
		{"unrelated", "Reunião de segunda", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intake, importer, _, recorder := newTestIntake(true)
			raw := buildMessage(tt.subject, [2]string{"nota.xml", nfeBody})

			_, err := intake.ProcessMessage(context.Background(), strings.NewReader(raw))
			require.NoError(t, err)

			if tt.want {
				assert.Len(t, importer.calls, 1)
			} else {
				assert.Empty(t, importer.calls)
				assert.Contains(t, recorder.types, entity.EventMailMessageIgnored)
			}
		})
	}
}

func TestIntake_ProcessMessage_OversizeAttachmentDropped(t *testing.T) {
	intake, importer, _, recorder := newTestIntake(true)
	raw := buildMessage("NF-e 123", [2]string{"grande.xml", strings.Repeat("x", 2048)})

	report, err := intake.ProcessMessage(context.Background(), strings.NewReader(raw))
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Empty(t, importer.calls)
	assert.Contains(t, recorder.types, entity.EventFileTooLarge)
}

func TestIntake_ProcessMessage_Unreadable(t *testing.T) {
	intake, _, _, _ := newTestIntake(true)

	_, err := intake.ProcessMessage(context.Background(), strings.NewReader("not a mail message"))
	assert.ErrorIs(t, err, ErrUnreadableMessage)
}

func TestIntake_ProcessBatch(t *testing.T) {
	intake, importer, limiter, _ := newTestIntake(true)

	res, err := intake.ProcessBatch(context.Background(), []RawMessage{
		{ID: "a.eml", Body: strings.NewReader(buildMessage("NFe 1", [2]string{"a.xml", nfeBody}))},
		{ID: "b.eml", Body: strings.NewReader(buildMessage("Almoço", [2]string{"b.xml", nfeBody}))},
		{ID: "c.eml", Body: strings.NewReader("garbage")},
		{ID: "d.eml", Body: strings.NewReader(buildMessage("DANFE 2", [2]string{"d.pdf", "%PDF"}))},
	})
	require.NoError(t, err)

	assert.False(t, res.RateLimited)
	assert.Equal(t, []string{"a.eml", "d.eml"}, res.Accepted)
	assert.Equal(t, []string{"b.eml"}, res.Ignored)
	assert.Contains(t, res.Unreadable, "c.eml")
	require.NotNil(t, res.Report)
	assert.Equal(t, 2, res.Report.Processed)

	require.Len(t, importer.calls, 1)
	assert.Len(t, importer.calls[0], 2)
	assert.Equal(t, []string{RateLimitKey}, limiter.keys)
}

func TestIntake_ProcessBatch_RateLimited(t *testing.T) {
	intake, importer, _, _ := newTestIntake(false)

	res, err := intake.ProcessBatch(context.Background(), []RawMessage{
		{ID: "a.eml", Body: strings.NewReader(buildMessage("NFe 1", [2]string{"a.xml", nfeBody}))},
	})
	require.NoError(t, err)

	assert.True(t, res.RateLimited)
	assert.Empty(t, res.Accepted)
	assert.Empty(t, importer.calls)
}
