package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"custody/types"

	lru "github.com/hashicorp/golang-lru"
)

var (
	ErrExpired  = errors.New("request timestamp outside accepted window")
	ErrReplayed = errors.New("request already seen")
	// ErrReplayCacheFull 缓存里最旧的摘要仍在有效窗口内，淘汰它会放过重放
	ErrReplayCacheFull = errors.New("replay cache full of live requests")
)

// Verifier 校验签名请求：时间窗口、签名、防重放。
// 缓存满时只淘汰已经过期的摘要，否则拒绝新请求。
type Verifier struct {
	style  AddressStyle
	maxAge time.Duration
	size   int
	mu     sync.Mutex
	seen   *lru.Cache // digest hex -> 过期时间 time.Time
	now    func() time.Time
}

// NewVerifier cacheSize 是记住的请求摘要数量；maxAge 同时约束过去和未来方向的时钟偏差
func NewVerifier(style AddressStyle, maxAge time.Duration, cacheSize int) (*Verifier, error) {
	if _, err := ParseStyle(string(style)); err != nil {
		return nil, err
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("max age must be positive, got %s", maxAge)
	}
	seen, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Verifier{style: style, maxAge: maxAge, size: cacheSize, seen: seen, now: time.Now}, nil
}

// Verify 返回请求方地址。只有通过全部检查的请求才会记入重放缓存。
func (v *Verifier) Verify(req *Request) (types.Address, error) {
	ts := time.Unix(req.Timestamp, 0)
	skew := v.now().Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxAge {
		return "", fmt.Errorf("%w: %s", ErrExpired, ts.UTC().Format(time.RFC3339))
	}

	pub, err := req.Verify()
	if err != nil {
		return "", err
	}

	if err := v.remember(hex.EncodeToString(req.Digest()), ts.Add(v.maxAge)); err != nil {
		return "", err
	}
	return DeriveAddress(pub, v.style)
}

// remember 记录摘要；expiry 之后同一请求会被时间窗口拒绝
func (v *Verifier) remember(digest string, expiry time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.seen.Contains(digest) {
		return ErrReplayed
	}
	if v.seen.Len() >= v.size {
		if _, oldest, ok := v.seen.GetOldest(); ok && !v.now().After(oldest.(time.Time)) {
			return ErrReplayCacheFull
		}
	}
	v.seen.Add(digest, expiry)
	return nil
}
