package access

import (
	"context"
	"testing"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_CanAccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := repositories.NewMemory()
	require.NoError(t, store.Subscriptions.Create(ctx, &models.Subscription{
		SubscriberID: "fan",
		SubscribeeID: "owner",
		Meta:         models.SubscriptionMeta{Type: "member", Style: models.StyleFollow},
	}))
	require.NoError(t, store.Subscriptions.Create(ctx, &models.Subscription{
		SubscriberID: "pending",
		SubscribeeID: "owner",
		Meta:         models.SubscriptionMeta{Type: "member", Style: models.StyleRequest},
	}))
	policy := NewPolicy(store.Subscriptions)

	tests := []struct {
		name      string
		requestor string
		resource  models.Doc
		want      bool
	}{
		{"nil resource", "fan", nil, false},
		{"public default", "", models.Doc{"author_id": "owner"}, true},
		{"public flag false anonymous", "", models.Doc{"author_id": "owner", "public": false}, false},
		{"owner sees private", "owner", models.Doc{"author_id": "owner", "privacy": "private"}, true},
		{"stranger denied private", "fan", models.Doc{"author_id": "owner", "privacy": "private"}, false},
		{"follower sees followers-only", "fan", models.Doc{"author_id": "owner", "privacy": "followers"}, true},
		{"pending request denied", "pending", models.Doc{"author_id": "owner", "privacy": "followers"}, false},
		{"anonymous denied followers-only", "", models.Doc{"author_id": "owner", "privacy": "followers"}, false},
		{"unknown privacy is private", "fan", models.Doc{"author_id": "owner", "privacy": "secret"}, false},
		{"member profile owner", "owner", models.Doc{"_id": "owner", "username": "o", "privacy": "private"}, true},
		{"embedded author", "owner", models.Doc{"author": models.Doc{"_id": "owner"}, "public": false}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := policy.CanAccess(ctx, tt.requestor, tt.resource)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
