package auth

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/farutech/tenantcore/internal/http/dto/auth"
	"github.com/farutech/tenantcore/internal/security/password"
)

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

func TestForgotPassword_UnknownEmailIsSilent(t *testing.T) {
	st := newMemStore()
	n := &recordingNotifier{}
	svc, _ := newTestServices(st, n)

	require.NoError(t, svc.Password.ForgotPassword(context.Background(), "ghost@acme.test"))
	assert.Empty(t, n.sent)
	assert.Empty(t, st.resets)
}

func TestForgotPassword_InactiveUserIsSilent(t *testing.T) {
	st := newMemStore()
	st.addUser("off@acme.test", goodPassword, false)
	n := &recordingNotifier{}
	svc, _ := newTestServices(st, n)

	require.NoError(t, svc.Password.ForgotPassword(context.Background(), "off@acme.test"))
	assert.Empty(t, n.sent)
}

func TestPasswordReset_FullFlowIsSingleUse(t *testing.T) {
	st := newMemStore()
	u := st.addUser("ana@acme.test", goodPassword, true)
	n := &recordingNotifier{}
	svc, _ := newTestServices(st, n)
	ctx := context.Background()

	require.NoError(t, svc.Password.ForgotPassword(ctx, "Ana@Acme.test"))
	require.Len(t, n.sent, 1)
	assert.Equal(t, "ana@acme.test", n.sent[0].to)
	assert.Contains(t, n.sent[0].link, "https://app.test/reset-password?token=")
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), n.sent[0].expiresAt, 5*time.Second)

	// sólo se persiste el hash
	plain := tokenFromLink(t, n.sent[0].link)
	_, stored := st.resets[plain]
	assert.False(t, stored)

	require.NoError(t, svc.Password.ResetPassword(ctx, plain, "a-brand-new-secret"))
	assert.True(t, password.Verify("a-brand-new-secret", st.users["ana@acme.test"].PasswordHash))
	assert.Equal(t, u.ID, st.users["ana@acme.test"].ID)

	err := svc.Password.ResetPassword(ctx, plain, "another-new-secret")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.Login.Login(ctx, dto.LoginRequest{Email: "ana@acme.test", Password: goodPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	st := newMemStore()
	st.addUser("ana@acme.test", goodPassword, true)
	n := &recordingNotifier{}
	svc, _ := newTestServices(st, n)
	ps := svc.Password.(*passwordService)
	ctx := context.Background()

	require.NoError(t, ps.ForgotPassword(ctx, "ana@acme.test"))
	require.Len(t, n.sent, 1)

	ps.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	err := ps.ResetPassword(ctx, tokenFromLink(t, n.sent[0].link), "a-brand-new-secret")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestResetPassword_RejectsWeakAndUnknown(t *testing.T) {
	st := newMemStore()
	svc, _ := newTestServices(st, &recordingNotifier{})
	ctx := context.Background()

	assert.ErrorIs(t, svc.Password.ResetPassword(ctx, "whatever", "short"), ErrWeakPassword)
	assert.ErrorIs(t, svc.Password.ResetPassword(ctx, "unknown-token", "long-enough-secret"), ErrTokenInvalid)
	assert.ErrorIs(t, svc.Password.ResetPassword(ctx, "  ", "long-enough-secret"), ErrTokenInvalid)
}

func TestResetLink(t *testing.T) {
	assert.Equal(t, "https://app.test/reset?x=1&token=abc", resetLink("https://app.test/reset?x=1", "abc"))
	assert.Equal(t, "abc", resetLink("", "abc"))
}
