package middleware

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"app/internal/model"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// Guard runs the abuse-prevention pipeline in front of a protected
// operation: blacklist lookups, per-user and per-IP rate limits, and an
// append-only log of the attempt. A small sample of requests additionally
// triggers an anomaly scan that can auto-ban the offending IP.
type Guard struct {
	blacklist service.BlacklistService
	limits    service.RateLimitService
	abuse     service.AbuseService

	sampleRate float64
	scanWindow int
	autoBan    time.Duration
	logger     zerolog.Logger
	now        func() time.Time
	sample     func() float64
}

// NewGuard creates a Guard with a scoped logger.
func NewGuard(
	blacklist service.BlacklistService,
	limits service.RateLimitService,
	abuse service.AbuseService,
	sampleRate float64,
	scanWindowMinutes int,
	autoBanMinutes int,
	logger zerolog.Logger,
) *Guard {
	return &Guard{
		blacklist:  blacklist,
		limits:     limits,
		abuse:      abuse,
		sampleRate: sampleRate,
		scanWindow: scanWindowMinutes,
		autoBan:    time.Duration(autoBanMinutes) * time.Minute,
		logger:     logger.With().Str("middleware", "guard").Logger(),
		now:        time.Now,
		sample:     rand.Float64,
	}
}

// Protect wraps a handler with the pipeline for the given operation type.
// Checks run in fixed order so the cheapest denial wins: blacklist, user
// rate limit, IP rate limit. The attempt is recorded whether or not the
// wrapped handler succeeded.
func (g *Guard) Protect(operationType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := RealIP(r)
			userID, _ := r.Context().Value(UserContextKey).(string)

			if res := g.blacklist.Check(r.Context(), model.BlacklistTypeIP, ip); res.Blocked {
				http.Error(w, "access denied: "+res.Reason, http.StatusForbidden)
				return
			}
			if userID != "" {
				if res := g.blacklist.Check(r.Context(), model.BlacklistTypeUser, userID); res.Blocked {
					http.Error(w, "access denied: "+res.Reason, http.StatusForbidden)
					return
				}
				if res := g.limits.CheckUserOperationLimit(r.Context(), userID, operationType); !res.Allowed {
					g.record(r.Context(), ip, userID, operationType, r, false)
					writeRateLimited(w, res)
					return
				}
			}
			if res := g.limits.CheckIPLimit(r.Context(), ip, operationType); !res.Allowed {
				g.record(r.Context(), ip, userID, operationType, r, false)
				writeRateLimited(w, res)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			g.record(r.Context(), ip, userID, operationType, r, rec.status < http.StatusBadRequest)

			if g.sample() < g.sampleRate {
				go g.scan(ip)
			}
		})
	}
}

// record writes the attempt to both the user counter and the IP log.
// Failures here never affect the response.
func (g *Guard) record(ctx context.Context, ip, userID, operationType string, r *http.Request, success bool) {
	if userID != "" {
		if err := g.limits.RecordUserOperation(ctx, userID, operationType); err != nil {
			g.logger.Error().Err(err).Str("user_id", userID).Msg("failed to record user operation")
		}
	}
	if err := g.limits.RecordIPOperation(ctx, &model.IPOperationLog{
		IP:            ip,
		OperationType: operationType,
		Success:       success,
		UserID:        userID,
		Path:          r.URL.Path,
		UserAgent:     r.UserAgent(),
	}); err != nil {
		g.logger.Error().Err(err).Str("ip", ip).Msg("failed to record ip operation")
	}
}

// scan runs the anomaly detector on the sampled IP and bans it for a
// fixed window when the pattern is severe.
func (g *Guard) scan(ip string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := g.abuse.DetectAnomalousPattern(ctx, ip, g.scanWindow)
	if err != nil {
		g.logger.Error().Err(err).Str("ip", ip).Msg("abuse scan failed")
		return
	}
	if report.Severity != model.SeverityHigh {
		return
	}
	expiresAt := g.now().Add(g.autoBan)
	if err := g.blacklist.Add(ctx, model.BlacklistTypeIP, ip, "auto-ban: "+report.Patterns[0], &expiresAt); err != nil {
		g.logger.Error().Err(err).Str("ip", ip).Msg("auto-ban failed")
		return
	}
	g.logger.Warn().Str("ip", ip).Strs("patterns", report.Patterns).Time("expires_at", expiresAt).Msg("ip auto-banned")
}

func writeRateLimited(w http.ResponseWriter, res *model.LimitResult) {
	if res.ResetTime != nil {
		retry := time.Until(*res.ResetTime).Seconds()
		if retry > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(retry)+1))
		}
	}
	http.Error(w, res.Reason, http.StatusTooManyRequests)
}
