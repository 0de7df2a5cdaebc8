package services

import (
	"context"
	"testing"
	"time"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) tokenSvc() *TokenService {
	log, _ := test.NewNullLogger()
	s := NewTokenService(f.store, f.audit, log)
	s.now = fixedClock
	return s
}

func TestIssueTokens(t *testing.T) {
	f := newFixture(t)
	tokens, err := f.tokenSvc().Issue(context.Background(), IssueTokensInput{Count: 3, Value: 1, ExpiryDate: testNow.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	for _, tok := range tokens {
		stored, ok := f.store.Token(tok.Code)
		require.True(t, ok)
		assert.True(t, stored.Usable(testNow))
	}
}

func TestIssueTokensRetriesCollisions(t *testing.T) {
	f := newFixture(t)
	svc := f.tokenSvc()
	codes := []string{"AAAA2222", "AAAA2222", "BBBB3333"}
	svc.generate = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	tokens, err := svc.Issue(context.Background(), IssueTokensInput{Count: 2, Value: 1, ExpiryDate: testNow})
	require.NoError(t, err)
	assert.Equal(t, "AAAA2222", tokens[0].Code)
	assert.Equal(t, "BBBB3333", tokens[1].Code)
}

func TestIssueTokensValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.tokenSvc()
	for name, in := range map[string]IssueTokensInput{
		"ZeroCount":  {Count: 0, Value: 1, ExpiryDate: testNow},
		"TooMany":    {Count: MaxTokensPerIssue + 1, Value: 1, ExpiryDate: testNow},
		"ZeroValue":  {Count: 1, Value: 0, ExpiryDate: testNow},
		"PastExpiry": {Count: 1, Value: 1, ExpiryDate: testNow.Add(-48 * time.Hour)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Issue(context.Background(), in)
			assert.Equal(t, errs.ValidationError, errs.KindOf(err))
		})
	}
}
