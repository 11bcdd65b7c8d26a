package library

import (
	"net/http"
	"strconv"

	"anibridge-plex/internal/logging"
	"anibridge-plex/internal/webhook"
)

// syncEvents are the webhook events that change what the host syncs.
var syncEvents = map[webhook.EventType]struct{}{
	webhook.EventMediaAdded: {},
	webhook.EventRate:       {},
	webhook.EventScrobble:   {},
}

// ParseWebhook decodes a Plex webhook and reports whether it should trigger
// a sync of the returned top-level rating keys.
func (p *Provider) ParseWebhook(r *http.Request) (bool, []string, error) {
	payload, err := webhook.FromRequest(r)
	if err != nil {
		return false, nil, err
	}
	return p.ShouldSync(payload)
}

// ShouldSync applies the sync rules to a decoded payload.
func (p *Provider) ShouldSync(payload webhook.Payload) (bool, []string, error) {
	accountID := payload.AccountID()
	if accountID == 0 {
		return false, nil, webhook.ErrMissingAccount
	}
	ratingKey := payload.TopLevelRatingKey()
	if ratingKey == "" {
		return false, nil, webhook.ErrMissingRatingKey
	}

	logger := p.logger.With(
		logging.String(logging.FieldEventType, string(payload.Event)),
		logging.Int64("account_id", accountID),
	)
	if _, ok := syncEvents[payload.Event]; !ok {
		logger.Debug("ignoring webhook event")
		return false, nil, nil
	}
	if !p.matchesAccount(accountID) {
		logger.Debug("ignoring webhook for another account")
		return false, nil, nil
	}

	logger.Info("webhook matched provider user", logging.RatingKey(ratingKey))
	return true, []string{ratingKey}, nil
}

// matchesAccount reports whether a webhook account id belongs to the synced
// user. Plex reports the server owner as account 1 in webhooks.
func (p *Provider) matchesAccount(accountID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return false
	}
	if p.user.Key == strconv.FormatInt(accountID, 10) {
		return true
	}
	return p.isAdmin && accountID == 1
}
