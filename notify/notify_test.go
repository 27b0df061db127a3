package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmaeda/urwatch/models"
)

func sampleSnapshot() *models.RunSnapshot {
	ts := time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)
	return models.NewRunSnapshot(ts, []models.PropertyResult{
		{
			URL:       "https://www.ur-net.go.jp/chintai/kanto/tokyo/20_1234.html",
			Name:      "多摩平の森",
			Status:    models.StatusSuccess,
			UnitCount: 2,
			Phone:     "042-000-0000",
			Units: []models.UnitRecord{
				{Layout: "2DK", Rent: "98,000円", FloorArea: "45㎡", Floor: "3階"},
				{Layout: "1LDK", Rent: "110,000円", FloorArea: "52㎡", Floor: "5階"},
			},
		},
		{
			URL:    "https://www.ur-net.go.jp/chintai/kanto/tokyo/20_5678.html",
			Name:   "高島平",
			Status: models.StatusSuccess,
		},
		{
			URL:    "https://www.ur-net.go.jp/chintai/kanto/tokyo/20_9999.html",
			Status: models.StatusFailed,
			Error:  "navigation failed",
		},
	})
}

func TestComposeNewVacancies(t *testing.T) {
	snap := sampleSnapshot()
	decision := models.Decision{
		ShouldNotify: true,
		Reason:       "1 newly vacant (1 new, 0 increased)",
		NewlyVacant: []models.NewlyVacant{
			{
				URL:        snap.Results[0].URL,
				ChangeType: models.ChangeTypeNew,
				Result:     snap.Results[0],
			},
		},
	}

	msg := Compose(decision, snap)

	assert.Equal(t, "【UR空室】2026-08-26 09:30 新着 1件", msg.Subject)

	for _, want := range []string{
		"■ 新着空室",
		"【新規】多摩平の森 (2件)",
		"URL: https://www.ur-net.go.jp/chintai/kanto/tokyo/20_1234.html",
		"2DK / 98,000円 / 45㎡ / 3階",
		"電話: 042-000-0000",
		"総チェック数: 3",
		"総空室数: 2",
		"高島平: ご紹介出来るお部屋はございません。",
		"チェック失敗:",
		"navigation failed",
	} {
		assert.Contains(t, msg.TextBody, want)
	}

	assert.Contains(t, msg.HTMLBody, "【新規】")
	assert.Contains(t, msg.HTMLBody, `href="https://www.ur-net.go.jp/chintai/kanto/tokyo/20_1234.html"`)
	assert.Contains(t, msg.HTMLBody, "<li>2DK / 98,000円 / 45㎡ / 3階</li>")
}

func TestComposeIncreasedLabel(t *testing.T) {
	snap := sampleSnapshot()
	decision := models.Decision{
		ShouldNotify: true,
		Reason:       "1 newly vacant (0 new, 1 increased)",
		NewlyVacant: []models.NewlyVacant{
			{
				URL:        snap.Results[0].URL,
				ChangeType: models.ChangeTypeIncreased,
				Result:     snap.Results[0],
			},
		},
	}

	msg := Compose(decision, snap)

	assert.Contains(t, msg.TextBody, "【空室増加】多摩平の森")
	assert.NotContains(t, msg.TextBody, "【新規】")
}

func TestComposeFirstRun(t *testing.T) {
	snap := sampleSnapshot()
	decision := models.Decision{
		ShouldNotify: true,
		IsFirstRun:   true,
		Reason:       "first run",
	}

	msg := Compose(decision, snap)

	assert.Equal(t, "【UR空室】2026-08-26 09:30 初回チェック結果", msg.Subject)
	assert.NotContains(t, msg.TextBody, "■ 新着空室")
	assert.Contains(t, msg.TextBody, "■ チェックサマリー")
}

func TestComposeEscapesHTML(t *testing.T) {
	snap := models.NewRunSnapshot(time.Now(), []models.PropertyResult{
		{
			URL:       "https://www.ur-net.go.jp/x.html",
			Name:      `<script>alert("x")</script>`,
			Status:    models.StatusSuccess,
			UnitCount: 1,
			Units:     []models.UnitRecord{{Layout: "1K", Rent: "60,000円", FloorArea: "30㎡", Floor: "1階"}},
		},
	})
	decision := models.Decision{
		ShouldNotify: true,
		Reason:       "1 newly vacant (1 new, 0 increased)",
		NewlyVacant: []models.NewlyVacant{
			{URL: snap.Results[0].URL, ChangeType: models.ChangeTypeNew, Result: snap.Results[0]},
		},
	}

	msg := Compose(decision, snap)

	assert.NotContains(t, msg.HTMLBody, "<script>")
	assert.Contains(t, msg.HTMLBody, "&lt;script&gt;")
}

func TestLoadSMTPConfig(t *testing.T) {
	t.Setenv("SMTP_USER", "watcher@example.com")
	t.Setenv("SMTP_PASS", "secret")
	t.Setenv("DEFAULT_TO_ADDR", "inbox@example.com")

	cfg, err := LoadSMTPConfig()
	require.NoError(t, err)

	assert.Equal(t, "smtp.email.ap-osaka-1.oci.oraclecloud.com", cfg.Server)
	assert.Equal(t, "587", cfg.Port)
	assert.Equal(t, "watcher@example.com", cfg.User)
	assert.Equal(t, "watcher@example.com", cfg.From)
	assert.Equal(t, "inbox@example.com", cfg.To)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Empty(t, cfg.BCC)
}

func TestLoadSMTPConfigOverrides(t *testing.T) {
	t.Setenv("SMTP_USER", "watcher@example.com")
	t.Setenv("SMTP_PASS", "secret")
	t.Setenv("DEFAULT_TO_ADDR", "inbox@example.com")
	t.Setenv("SMTP_SERVER", "mail.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_MAX_RETRIES", "1")
	t.Setenv("FROM_ADDR", "noreply@example.com")
	t.Setenv("BCC_ADDR", "archive@example.com")

	cfg, err := LoadSMTPConfig()
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com", cfg.Server)
	assert.Equal(t, "2525", cfg.Port)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, "noreply@example.com", cfg.From)
	assert.Equal(t, "archive@example.com", cfg.BCC)
}

func TestLoadSMTPConfigMissingCredentials(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{name: "missing user", unset: "SMTP_USER"},
		{name: "missing pass", unset: "SMTP_PASS"},
		{name: "missing recipient", unset: "DEFAULT_TO_ADDR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SMTP_USER", "watcher@example.com")
			t.Setenv("SMTP_PASS", "secret")
			t.Setenv("DEFAULT_TO_ADDR", "inbox@example.com")
			t.Setenv(tt.unset, "")

			_, err := LoadSMTPConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.unset)
		})
	}
}

func TestLoadSMTPConfigBadRetryCount(t *testing.T) {
	t.Setenv("SMTP_USER", "watcher@example.com")
	t.Setenv("SMTP_PASS", "secret")
	t.Setenv("DEFAULT_TO_ADDR", "inbox@example.com")
	t.Setenv("SMTP_MAX_RETRIES", "many")

	_, err := LoadSMTPConfig()
	assert.Error(t, err)
}

func TestBuildPayload(t *testing.T) {
	sender := NewSender(SMTPConfig{
		From: "noreply@example.com",
		To:   "inbox@example.com",
	})

	payload := string(sender.buildPayload(Message{
		Subject:  "【UR空室】テスト",
		TextBody: "本文",
		HTMLBody: "<p>本文</p>",
	}))

	assert.Contains(t, payload, "From: noreply@example.com\r\n")
	assert.Contains(t, payload, "To: inbox@example.com\r\n")
	assert.Contains(t, payload, "Content-Type: multipart/alternative;")
	assert.Contains(t, payload, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, payload, "Content-Type: text/html; charset=utf-8")
	// Japanese subject is RFC 2047 encoded.
	assert.Contains(t, payload, "Subject: =?utf-8?q?")
	assert.True(t, strings.HasSuffix(payload, "--urwatch-alt-boundary--\r\n"))
}
