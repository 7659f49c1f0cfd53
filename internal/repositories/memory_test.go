package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySubscriptions_PairIsUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	sub := &models.Subscription{SubscriberID: "a", SubscribeeID: "b", Meta: models.SubscriptionMeta{Type: "member", Style: models.StyleFollow}}
	require.NoError(t, store.Subscriptions.Create(ctx, sub))
	assert.NotEmpty(t, sub.ID)
	assert.False(t, sub.Created.IsZero())

	dup := &models.Subscription{SubscriberID: "a", SubscribeeID: "b", Meta: models.SubscriptionMeta{Type: "member", Style: models.StyleWatch}}
	assert.ErrorIs(t, store.Subscriptions.Create(ctx, dup), ErrConflict)
	assert.Equal(t, 1, store.Subscriptions.Len())
}

func TestMemorySubscriptions_ListMatchesAnyFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	mk := func(subscriber, subscribee string, style models.Style, mute bool) {
		t.Helper()
		require.NoError(t, store.Subscriptions.Create(ctx, &models.Subscription{
			SubscriberID: subscriber,
			SubscribeeID: subscribee,
			Meta:         models.SubscriptionMeta{Type: "member", Style: style},
			Mute:         mute,
		}))
	}
	mk("a", "actor", models.StyleFollow, false)
	mk("b", "actor", models.StyleFollow, true)
	mk("c", "actor", models.StyleWatch, false)
	mk("d", "target", models.StyleWatch, false)

	subs, err := store.Subscriptions.List(ctx,
		SubscriptionFilter{SubscribeeID: "actor", Style: models.StyleFollow, Muted: Unmuted()},
		SubscriptionFilter{SubscribeeID: "target", Style: models.StyleWatch, Muted: Unmuted()},
	)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "a", subs[0].SubscriberID)
	assert.Equal(t, "d", subs[1].SubscriberID)

	none, err := store.Subscriptions.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemorySubscriptions_UpdateAndRemoveCounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	sub := &models.Subscription{SubscriberID: "a", SubscribeeID: "b", Meta: models.SubscriptionMeta{Type: "member", Style: models.StyleRequest}}
	require.NoError(t, store.Subscriptions.Create(ctx, sub))

	n, err := store.Subscriptions.UpdateStyle(ctx, sub.ID, models.StyleFollow)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := store.Subscriptions.Read(ctx, SubscriptionFilter{SubscriberID: "a", SubscribeeID: "b"})
	require.NoError(t, err)
	assert.Equal(t, models.StyleFollow, got.Meta.Style)

	n, err = store.Subscriptions.UpdateStyle(ctx, "missing", models.StyleFollow)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.Subscriptions.Remove(ctx, sub.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = store.Subscriptions.Remove(ctx, sub.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = store.Subscriptions.Read(ctx, SubscriptionFilter{ID: sub.ID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryEvents_UpdatePatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	event := &models.Event{ActorID: "a", ActionType: "request", Public: true, Data: models.EventData{Action: models.Doc{"t": "request"}}}
	require.NoError(t, store.Events.Create(ctx, event))

	require.NoError(t, store.Events.Update(ctx, event.ID, models.Doc{
		"action_type":   "accept",
		"data.action.t": "accept",
	}))
	got, err := store.Events.Read(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "accept", got.ActionType)
	assert.Equal(t, "accept", got.Data.Action.Str("t"))

	assert.Error(t, store.Events.Update(ctx, event.ID, models.Doc{"unknown": 1}))
	assert.ErrorIs(t, store.Events.Update(ctx, "missing", models.Doc{"public": false}), ErrNotFound)
}

func TestMemoryNotifications_Inbox(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Notifications.Create(ctx, &models.Notification{
			SubscriberID:   "a",
			SubscriptionID: "s1",
			EventID:        string(rune('x' + i)),
			Created:        time.Now().Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.Notifications.Create(ctx, &models.Notification{SubscriberID: "b", SubscriptionID: "s2", EventID: "y"}))

	page, err := store.Notifications.ListBySubscriber(ctx, "a", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "y", page[0].EventID)

	err = store.Notifications.MarkAsRead(ctx, page[0].ID, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Notifications.MarkAsRead(ctx, page[0].ID, "a"))

	require.NoError(t, store.Notifications.MarkAllAsRead(ctx, "a"))
	all, err := store.Notifications.ListBySubscriber(ctx, "a", 0, 0)
	require.NoError(t, err)
	for _, n := range all {
		assert.True(t, n.Read)
	}

	removed, err := store.Notifications.RemoveBySubscription(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)
	assert.Len(t, store.Notifications.All(), 1)
}

func TestMemoryJoiner_InflateProjectsProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Members.Save(ctx, &models.Member{ID: "m1", Username: "alex", DisplayName: "Alex", PrimaryEmail: "alex@example.com"}))

	post := models.Doc{"_id": "p1", "author_id": "m1", "crag_id": "gone"}
	err := Inflate(ctx, store.Joiner, post, map[string]Ref{
		"author": {Collection: "member", Fields: Profile{"username", "displayName"}},
		"crag":   {Collection: "crag"},
	})
	require.NoError(t, err)

	author := post.Doc("author")
	require.NotNil(t, author)
	assert.Equal(t, "m1", author.ID())
	assert.Equal(t, "alex", author.Str("username"))
	assert.NotContains(t, author, "primaryEmail")
	assert.NotContains(t, post, "crag")
}

func TestMemoryJoiner_FillSortsLimitsAndReverses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Members.Save(ctx, &models.Member{ID: "m1", Username: "alex"}))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		store.Joiner.Insert("comment", models.Doc{
			"parent_id": "p1",
			"author_id": "m1",
			"body":      string(rune('a' + i)),
			"created":   base.Add(time.Duration(i) * time.Minute),
		})
	}
	store.Joiner.Insert("comment", models.Doc{"parent_id": "p2", "body": "other"})

	parents := []models.Doc{{"_id": "p1"}, {"_id": "p3"}}
	err := Fill(ctx, store.Joiner, parents, "Comments", "parent_id", FillOptions{
		As:      "comments",
		Sort:    "created",
		Desc:    true,
		Limit:   5,
		Reverse: true,
		Inflate: map[string]Ref{"author": {Collection: "member", Fields: Profile{"username"}}},
	})
	require.NoError(t, err)

	comments := parents[0].Docs("comments")
	require.Len(t, comments, 5)
	bodies := make([]string, 0, len(comments))
	for _, c := range comments {
		bodies = append(bodies, c.Str("body"))
		assert.Equal(t, "alex", c.Doc("author").Str("username"))
	}
	assert.Equal(t, []string{"c", "d", "e", "f", "g"}, bodies)
	assert.Empty(t, parents[1].Docs("comments"))
	assert.NotNil(t, parents[1]["comments"])
}

func TestCollectionName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "posts", CollectionName("post"))
	assert.Equal(t, "comments", CollectionName("Comments"))
	assert.Equal(t, "members", CollectionName("member"))
}

func TestProfile_ProjectKeepsID(t *testing.T) {
	t.Parallel()
	doc := models.Doc{"_id": "x", "name": "n", "secret": "s"}
	out := Profile{"name"}.Project(doc)
	assert.Equal(t, models.Doc{"_id": "x", "name": "n"}, out)
	assert.Equal(t, doc, Profile(nil).Project(doc))
	assert.Nil(t, Profile{"name"}.Project(nil))
}
