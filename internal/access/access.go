// Package access decides whether a member may see a piece of content.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
)

// Privacy levels stored on content documents under "privacy".
const (
	PrivacyPublic    = "public"
	PrivacyFollowers = "followers"
	PrivacyPrivate   = "private"
)

// Policy grants access to content by owner and privacy level. Followers-only
// content requires a follow subscription from the requestor to the owner.
type Policy struct {
	subscriptions repositories.SubscriptionRepository
}

// NewPolicy creates a Policy backed by the subscription store.
func NewPolicy(subscriptions repositories.SubscriptionRepository) *Policy {
	return &Policy{subscriptions: subscriptions}
}

// CanAccess reports whether requestorID may see resource. An empty
// requestorID is the anonymous requestor.
func (p *Policy) CanAccess(ctx context.Context, requestorID string, resource models.Doc) (bool, error) {
	if resource == nil {
		return false, nil
	}
	owner := Owner(resource)
	if requestorID != "" && requestorID == owner {
		return true, nil
	}

	switch Privacy(resource) {
	case PrivacyPublic:
		return true, nil
	case PrivacyFollowers:
		if requestorID == "" || owner == "" {
			return false, nil
		}
		_, err := p.subscriptions.Read(ctx, repositories.SubscriptionFilter{
			SubscriberID: requestorID,
			SubscribeeID: owner,
			Style:        models.StyleFollow,
		})
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("check follow: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// Owner returns the member owning resource: its author, or the resource
// itself when it is a member profile.
func Owner(resource models.Doc) string {
	if id := resource.Str("author_id"); id != "" {
		return id
	}
	if author := resource.Doc("author"); author != nil {
		return author.ID()
	}
	if resource.Str("username") != "" {
		return resource.ID()
	}
	return ""
}

// Privacy returns the privacy level of resource. A false "public" flag
// means private; anything unknown is treated as private.
func Privacy(resource models.Doc) string {
	if p := resource.Str("privacy"); p != "" {
		switch p {
		case PrivacyPublic, PrivacyFollowers:
			return p
		}
		return PrivacyPrivate
	}
	if !resource.Bool("public", true) {
		return PrivacyPrivate
	}
	return PrivacyPublic
}
