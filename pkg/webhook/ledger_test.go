package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/growthlabs/campaignd/pkg/store"
	"github.com/growthlabs/campaignd/test/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	l := NewLedger(nil, "whsec_test", nil)
	payload := []byte(`{"type":"user.created"}`)
	ts := "1700000000"

	assert.True(t, l.VerifySignature(payload, ts, sign("whsec_test", ts, payload)))
	assert.False(t, l.VerifySignature(payload, ts, sign("whsec_wrong", ts, payload)))
	assert.False(t, l.VerifySignature(payload, "1700000001", sign("whsec_test", ts, payload)))
}

func TestApply_UserCreated_CreatesUser(t *testing.T) {
	db, _ := util.SetupTestDatabase(t)
	s := store.New(db)
	l := NewLedger(s, "whsec_test", nil)

	payload := map[string]any{
		"type": "user.created",
		"data": map[string]any{
			"id":              "ext-123",
			"email_addresses": []any{map[string]any{"email_address": "new@example.com"}},
		},
	}
	raw, _ := json.Marshal(payload)
	evt, err := ParseEvent(raw, "evt-1")
	require.NoError(t, err)

	result, err := l.Apply(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, result)

	user, err := s.GetUserByExternalID(context.Background(), "ext-123")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
}

func TestApply_DuplicateEventID_Skipped(t *testing.T) {
	db, _ := util.SetupTestDatabase(t)
	s := store.New(db)
	l := NewLedger(s, "whsec_test", nil)

	payload := map[string]any{
		"type": "user.created",
		"data": map[string]any{
			"id":              "ext-456",
			"email_addresses": []any{map[string]any{"email_address": "dup@example.com"}},
		},
	}
	raw, _ := json.Marshal(payload)
	evt, err := ParseEvent(raw, "evt-dup")
	require.NoError(t, err)

	_, err = l.Apply(context.Background(), evt)
	require.NoError(t, err)

	// Fresh ledger instance so the in-process dedupe cache can't mask the
	// database-level idempotency check under test.
	l2 := NewLedger(s, "whsec_test", nil)
	result, err := l2.Apply(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicateSkipped, result)
}

func TestApply_UserDeleted_ArchivesCampaignsByInternalID(t *testing.T) {
	db, _ := util.SetupTestDatabase(t)
	s := store.New(db)
	l := NewLedger(s, "whsec_test", nil)
	ctx := context.Background()

	createPayload := map[string]any{
		"type": "user.created",
		"data": map[string]any{
			"id":              "ext-789",
			"email_addresses": []any{map[string]any{"email_address": "gone@example.com"}},
		},
	}
	raw, _ := json.Marshal(createPayload)
	createEvt, err := ParseEvent(raw, "evt-create-789")
	require.NoError(t, err)
	_, err = l.Apply(ctx, createEvt)
	require.NoError(t, err)

	user, err := s.GetUserByExternalID(ctx, "ext-789")
	require.NoError(t, err)
	campaign, err := s.CreateCampaign(ctx, user.UserID)
	require.NoError(t, err)

	deletePayload := map[string]any{
		"type": "user.deleted",
		"data": map[string]any{"id": "ext-789"},
	}
	raw, _ = json.Marshal(deletePayload)
	deleteEvt, err := ParseEvent(raw, "evt-delete-789")
	require.NoError(t, err)

	result, err := l.Apply(ctx, deleteEvt)
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, result)

	_, err = s.GetUser(ctx, user.UserID)
	assert.Error(t, err, "user row should be gone")

	archived, err := s.GetCampaign(ctx, campaign.CampaignID)
	require.NoError(t, err, "campaign row survives the owning user's deletion")
	assert.Nil(t, archived.UserID, "user_id is cleared by ON DELETE SET NULL")
	assert.EqualValues(t, "archived_user_deleted", archived.Status)
}
