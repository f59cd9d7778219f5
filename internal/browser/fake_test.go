package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/planning-cli-go/internal/model"
)

var (
	_ Launcher = (*FakeLauncher)(nil)
	_ Launcher = (*ChromeLauncher)(nil)
	_ Page     = (*FakePage)(nil)
	_ Page     = (*chromePage)(nil)
)

func TestFakePageRecordsCalls(t *testing.T) {
	ctx := context.Background()
	l := NewFakeLauncher()
	l.Elements["#ok"] = true
	l.Texts["#msg"] = "hello"
	l.ScreenshotData = []byte("png")
	l.BrowserCookies = []model.Cookie{{Name: "s", Value: "1"}}

	page, err := l.NewPage(ctx)
	require.NoError(t, err)
	p := page.(*FakePage)

	require.NoError(t, p.Navigate(ctx, "https://portal.example/"))
	require.NoError(t, p.Fill(ctx, "#user", "alice"))
	require.NoError(t, p.Click(ctx, "#go"))

	ok, err := p.Exists(ctx, "#ok")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p.Exists(ctx, "#missing")
	require.NoError(t, err)
	assert.False(t, ok)

	text, err := p.Text(ctx, "#msg")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	_, err = p.Text(ctx, "#nothing")
	assert.Error(t, err)

	shot, err := p.Screenshot(ctx, "table")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), shot)

	cookies, err := p.Cookies(ctx)
	require.NoError(t, err)
	assert.Equal(t, l.BrowserCookies, cookies)

	require.NoError(t, p.SetCookies(ctx, cookies))
	assert.Equal(t, cookies, p.InstalledCookies())

	assert.Equal(t, "https://portal.example/", p.CurrentURL())
	assert.Equal(t, "alice", p.Value("#user"))
	assert.True(t, p.Called("click", "#go"))
	assert.Equal(t, 1, l.OpenPages())

	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
	assert.Equal(t, 0, l.OpenPages())
	assert.Equal(t, 1, l.PagesOpened())

	assert.Error(t, p.Click(ctx, "#go"), "closed page rejects calls")
}

func TestFakePageScriptedErrors(t *testing.T) {
	ctx := context.Background()
	l := NewFakeLauncher()
	boom := errors.New("boom")
	l.Errors["click #broken"] = boom

	page, err := l.NewPage(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, page.Click(ctx, "#broken"), boom)
	assert.NoError(t, page.Click(ctx, "#fine"))

	l.NewPageErr = boom
	_, err = l.NewPage(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestFakePageEvaluate(t *testing.T) {
	ctx := context.Background()
	l := NewFakeLauncher()
	l.EvalFunc = func(_ *FakePage, expr string) (any, error) {
		return []string{"1", "2"}, nil
	}

	page, err := l.NewPage(ctx)
	require.NoError(t, err)

	var ids []string
	require.NoError(t, page.Evaluate(ctx, "ids()", &ids))
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.NoError(t, page.Evaluate(ctx, "ids()", nil))
}

func TestFakeLauncherCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFakeLauncher().NewPage(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
