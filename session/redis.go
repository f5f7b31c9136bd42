package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccountID     = "account_id"
	fieldUsername      = "username"
	fieldAuthenticated = "authenticated"
	fieldRequiresTOTP  = "requires_totp"
	fieldTOTPVerified  = "totp_verified"
	fieldCSRF          = "csrf"
	fieldCSRFAt        = "csrf_at"
	fieldCaptcha       = "captcha"
	fieldCaptchaAt     = "captcha_at"
	fieldCreatedAt     = "created_at"
	fieldExpiresAt     = "expires_at"
)

// Returns 0 when the session hash is gone so callers map it to ErrNotFound.
const setFieldsScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
for i = 1, #ARGV, 2 do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`

var setFieldsLua = redis.NewScript(setFieldsScript)

const ensureCSRFScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return false
end
local token = redis.call("HGET", KEYS[1], "csrf")
local at = tonumber(redis.call("HGET", KEYS[1], "csrf_at") or "0")
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
if token and token ~= "" and at and (now - at) <= ttl then
  return {token, tostring(redis.call("HGET", KEYS[1], "csrf_at"))}
end
redis.call("HSET", KEYS[1], "csrf", ARGV[1], "csrf_at", ARGV[2])
return {ARGV[1], ARGV[2]}
`

var ensureCSRFLua = redis.NewScript(ensureCSRFScript)

// KEYS: session, nonce hash, nonce zset.
// ARGV: nonce, meta, issued ms, exclusive stale bound, max.
const putNonceScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local stale = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", ARGV[4])
for _, n in ipairs(stale) do
  redis.call("HDEL", KEYS[2], n)
end
if #stale > 0 then
  redis.call("ZREMRANGEBYSCORE", KEYS[3], "-inf", ARGV[4])
end
redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[1])
local max = tonumber(ARGV[5])
local count = redis.call("ZCARD", KEYS[3])
if max > 0 and count > max then
  local excess = count - max
  local evict = redis.call("ZRANGE", KEYS[3], 0, excess - 1)
  for _, n in ipairs(evict) do
    redis.call("HDEL", KEYS[2], n)
  end
  redis.call("ZREMRANGEBYRANK", KEYS[3], 0, excess - 1)
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[2], ttl)
  redis.call("PEXPIRE", KEYS[3], ttl)
end
return 1
`

var putNonceLua = redis.NewScript(putNonceScript)

const takeNonceScript = `
local meta = redis.call("HGET", KEYS[1], ARGV[1])
if not meta then
  return false
end
redis.call("HDEL", KEYS[1], ARGV[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return meta
`

var takeNonceLua = redis.NewScript(takeNonceScript)

const markFormScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

var markFormLua = redis.NewScript(markFormScript)

const takeFieldScript = `
local v = redis.call("HGET", KEYS[1], ARGV[1])
if not v then
  return false
end
redis.call("HDEL", KEYS[1], ARGV[1])
return v
`

var takeFieldLua = redis.NewScript(takeFieldScript)

// KEYS: session, submission zset, sequence counter.
// ARGV: submission id, capacity, keep.
// Returns -1 for a missing session, 0 for a duplicate, 1 when recorded.
const recordSubmissionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("ZSCORE", KEYS[2], ARGV[1]) then
  return 0
end
local seq = redis.call("INCR", KEYS[3])
redis.call("ZADD", KEYS[2], seq, ARGV[1])
local capacity = tonumber(ARGV[2])
local keep = tonumber(ARGV[3])
local count = redis.call("ZCARD", KEYS[2])
if capacity > 0 and count > capacity then
  redis.call("ZREMRANGEBYRANK", KEYS[2], 0, count - keep - 1)
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[2], ttl)
  redis.call("PEXPIRE", KEYS[3], ttl)
end
return 1
`

var recordSubmissionLua = redis.NewScript(recordSubmissionScript)

var _ Store = (*Redis)(nil)

// Redis is a Store backed by a Redis hash per session plus side keys.
//
// Key layout for prefix p and session id s:
//
//	p:s          hash of session fields
//	p:s:n        hash nonce -> metadata JSON
//	p:s:nz       zset nonce -> issued ms
//	p:s:f        hash form id -> start ms
//	p:s:sub      zset submission id -> sequence
//	p:s:subseq   submission sequence counter
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis returns a Redis store. prefix defaults to "gs".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "gs"
	}
	return &Redis{redis: client, prefix: prefix}
}

func (s *Redis) key(id string) string         { return s.prefix + ":" + id }
func (s *Redis) nonceKey(id string) string    { return s.key(id) + ":n" }
func (s *Redis) nonceAgeKey(id string) string { return s.key(id) + ":nz" }
func (s *Redis) formKey(id string) string     { return s.key(id) + ":f" }
func (s *Redis) subKey(id string) string      { return s.key(id) + ":sub" }
func (s *Redis) subSeqKey(id string) string   { return s.key(id) + ":subseq" }

func (s *Redis) allKeys(id string) []string {
	return []string{
		s.key(id),
		s.nonceKey(id),
		s.nonceAgeKey(id),
		s.formKey(id),
		s.subKey(id),
		s.subSeqKey(id),
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Create writes the session hash with ttl.
func (s *Redis) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	created := sess.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	expires := sess.ExpiresAt
	if ttl > 0 {
		expires = created.Add(ttl)
	}

	fields := []any{
		fieldAccountID, sess.AccountID,
		fieldUsername, sess.Username,
		fieldAuthenticated, boolField(sess.Authenticated),
		fieldRequiresTOTP, boolField(sess.RequiresTOTP),
		fieldTOTPVerified, boolField(sess.TOTPVerified),
		fieldCSRF, sess.CSRFToken,
		fieldCSRFAt, msField(sess.CSRFIssuedAt),
		fieldCaptcha, sess.CaptchaText,
		fieldCaptchaAt, msField(sess.CaptchaIssuedAt),
		fieldCreatedAt, msField(created),
		fieldExpiresAt, msField(expires),
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.allKeys(sess.ID)...)
		pipe.HSet(ctx, s.key(sess.ID), fields...)
		if ttl > 0 {
			pipe.PExpire(ctx, s.key(sess.ID), ttl)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Get loads the session hash, or ErrNotFound.
func (s *Redis) Get(ctx context.Context, id string) (*Session, error) {
	values, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}

	sess := &Session{
		ID:              id,
		AccountID:       values[fieldAccountID],
		Username:        values[fieldUsername],
		Authenticated:   values[fieldAuthenticated] == "1",
		RequiresTOTP:    values[fieldRequiresTOTP] == "1",
		TOTPVerified:    values[fieldTOTPVerified] == "1",
		CSRFToken:       values[fieldCSRF],
		CSRFIssuedAt:    parseMS(values[fieldCSRFAt]),
		CaptchaText:     values[fieldCaptcha],
		CaptchaIssuedAt: parseMS(values[fieldCaptchaAt]),
		CreatedAt:       parseMS(values[fieldCreatedAt]),
		ExpiresAt:       parseMS(values[fieldExpiresAt]),
	}
	return sess, nil
}

// Delete removes the session hash and every key scoped to it.
func (s *Redis) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.allKeys(id)...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Redis) setFields(ctx context.Context, id string, args ...any) error {
	res, err := setFieldsLua.Run(ctx, s.redis, []string{s.key(id)}, args...).Int64()
	if err != nil {
		return unavailable(err)
	}
	if res == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFlags updates the flag fields of an existing session.
func (s *Redis) SetFlags(ctx context.Context, id string, flags Flags) error {
	return s.setFields(ctx, id,
		fieldAccountID, flags.AccountID,
		fieldUsername, flags.Username,
		fieldAuthenticated, boolField(flags.Authenticated),
		fieldRequiresTOTP, boolField(flags.RequiresTOTP),
		fieldTOTPVerified, boolField(flags.TOTPVerified),
	)
}

// EnsureCSRF keeps a token younger than ttl or installs candidate, atomically.
func (s *Redis) EnsureCSRF(ctx context.Context, id, candidate string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	res, err := ensureCSRFLua.Run(ctx, s.redis, []string{s.key(id)},
		candidate, msField(now), ttl.Milliseconds(),
	).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", time.Time{}, ErrNotFound
		}
		return "", time.Time{}, unavailable(err)
	}
	if len(res) != 2 {
		return "", time.Time{}, unavailable(errors.New("unexpected csrf script reply"))
	}
	return res[0], parseMS(res[1]), nil
}

// SetCaptcha replaces the pending captcha answer.
func (s *Redis) SetCaptcha(ctx context.Context, id, text string, at time.Time) error {
	return s.setFields(ctx, id, fieldCaptcha, text, fieldCaptchaAt, msField(at))
}

// ClearCaptcha removes the pending captcha answer.
func (s *Redis) ClearCaptcha(ctx context.Context, id string) error {
	if err := s.redis.HDel(ctx, s.key(id), fieldCaptcha, fieldCaptchaAt).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// PutNonce prunes, stores and caps the nonce set in one script.
func (s *Redis) PutNonce(ctx context.Context, id, nonce string, meta NonceMeta, window time.Duration, max int) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	issued := meta.IssuedAt.UnixMilli()
	staleBound := "(" + strconv.FormatInt(issued-window.Milliseconds(), 10)

	res, err := putNonceLua.Run(ctx, s.redis,
		[]string{s.key(id), s.nonceKey(id), s.nonceAgeKey(id)},
		nonce, string(payload), issued, staleBound, max,
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if res == 0 {
		return ErrNotFound
	}
	return nil
}

// TakeNonce removes nonce and its metadata in one script.
func (s *Redis) TakeNonce(ctx context.Context, id, nonce string) (NonceMeta, bool, error) {
	raw, err := takeNonceLua.Run(ctx, s.redis, []string{s.nonceKey(id), s.nonceAgeKey(id)}, nonce).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return NonceMeta{}, false, nil
		}
		return NonceMeta{}, false, unavailable(err)
	}

	var meta NonceMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		// The entry is already consumed; a corrupt record simply never validates.
		return NonceMeta{}, false, nil
	}
	return meta, true, nil
}

// MarkForm records when formID was rendered.
func (s *Redis) MarkForm(ctx context.Context, id, formID string, at time.Time) error {
	res, err := markFormLua.Run(ctx, s.redis, []string{s.key(id), s.formKey(id)}, formID, msField(at)).Int64()
	if err != nil {
		return unavailable(err)
	}
	if res == 0 {
		return ErrNotFound
	}
	return nil
}

// TakeForm removes and returns the start mark of formID.
func (s *Redis) TakeForm(ctx context.Context, id, formID string) (time.Time, bool, error) {
	raw, err := takeFieldLua.Run(ctx, s.redis, []string{s.formKey(id)}, formID).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, unavailable(err)
	}
	return parseMS(raw), true, nil
}

// RecordSubmission adds submissionID unless present, trimming to keep past capacity.
func (s *Redis) RecordSubmission(ctx context.Context, id, submissionID string, capacity, keep int) (bool, error) {
	res, err := recordSubmissionLua.Run(ctx, s.redis,
		[]string{s.key(id), s.subKey(id), s.subSeqKey(id)},
		submissionID, capacity, keep,
	).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	switch res {
	case -1:
		return false, ErrNotFound
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

// ReleaseSubmission removes submissionID so it may be submitted again.
func (s *Redis) ReleaseSubmission(ctx context.Context, id, submissionID string) error {
	if err := s.redis.ZRem(ctx, s.subKey(id), submissionID).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func msField(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMS(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
