package events

import (
	"errors"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

// seedPost stores a post by author with n comments.
func seedPost(f *fixture, id, author string, comments int) models.Doc {
	f.t.Helper()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	post := f.store.Joiner.Insert("post", models.Doc{
		"_id":       id,
		"author_id": author,
		"body":      "Sent it!",
		"created":   base,
	})
	for i := 0; i < comments; i++ {
		f.store.Joiner.Insert("comment", models.Doc{
			"parent_id":   id,
			"parent_type": "post",
			"author_id":   author,
			"body":        string(rune('a' + i)),
			"created":     base.Add(time.Duration(i+1) * time.Minute),
		})
	}
	f.store.Joiner.Insert("media", models.Doc{"parent_id": id, "url": "https://cdn.example.com/1.jpg", "created": base})
	return post
}

func TestPublish_FollowerOfAuthorIsNotified(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member("a")
	f.member("b")
	f.subscription("a", "b", "member", models.StyleFollow)
	post := seedPost(f, "p1", "b", 6)

	err := f.engine.Publish(f.ctx, "post", "post.new", Params{
		Data:   post,
		Event:  &EventSpec{ActorID: "b", ActionID: "p1", ActionType: "post"},
		Notify: Notify{Subscriber: true},
	})
	require.NoError(t, err)

	notes := f.store.Notifications.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "a", notes[0].SubscriberID)
	assert.Empty(t, f.notesFor("b"))

	assert.Equal(t, []string{"post.new"}, f.socket.on("post"))
	assert.Equal(t, []string{"event.new"}, f.socket.on("mem-b"))
	assert.Equal(t, []string{"event.new", "notification.new"}, f.socket.on("mem-a"))

	view, ok := f.socket.find("mem-a", "event.new")
	require.True(t, ok)
	assert.NotContains(t, view, "_id")
	action := view.Doc("action")
	require.NotNil(t, action)
	assert.Equal(t, "b-user", action.Doc("author").Str("username"))
	assert.Len(t, action.Docs("medias"), 1)
	comments := action.Docs("comments")
	require.Len(t, comments, 5)
	assert.Equal(t, "b", comments[0].Str("body"))
	assert.Equal(t, "f", comments[4].Str("body"))
	assert.Equal(t, "b-user", comments[0].Doc("author").Str("username"))
	assert.NotNil(t, action["hangtens"])

	events := f.store.Events.All()
	require.Len(t, events, 1)
	assert.True(t, events[0].Public)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), events[0].Date)
}

func TestPublish_PrivateDataGoesOnlyToAuthor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.engine.Publish(f.ctx, "post", "post.new", Params{
		Data: models.Doc{"_id": "p1", "public": false, "author": models.Doc{"_id": "b"}},
	})
	require.NoError(t, err)
	assert.Empty(t, f.socket.on("post"))
	assert.Equal(t, []string{"post.new"}, f.socket.on("mem-b"))

	err = f.engine.Publish(f.ctx, "tick", "tick.new", Params{
		Data: models.Doc{"_id": "t1", "public": false, "actor_id": "c"},
	})
	require.NoError(t, err)
	assert.Empty(t, f.socket.on("tick"))
	assert.Equal(t, []string{"tick.new"}, f.socket.on("mem-c"))
}

func TestPublish_PrivateEventReachesOnlyActor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member("a")
	f.member("b")
	f.subscription("a", "b", "member", models.StyleFollow)
	post := seedPost(f, "p1", "b", 0)

	err := f.engine.Publish(f.ctx, "post", "post.new", Params{
		Data:   post,
		Event:  &EventSpec{ActorID: "b", ActionID: "p1", ActionType: "post", Public: boolPtr(false)},
		Notify: Notify{Subscriber: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"event.new"}, f.socket.on("mem-b"))
	// not broadcast, but the follower is still notified
	assert.Equal(t, []string{"notification.new"}, f.socket.on("mem-a"))
}

func TestPublish_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name    string
		channel string
		topic   string
		params  Params
	}{
		{"missing channel", "", "post.new", Params{Data: models.Doc{}}},
		{"missing topic", "post", "", Params{Data: models.Doc{}}},
		{"missing data", "post", "post.new", Params{}},
		{"unknown method", "post", "post.new", Params{Data: models.Doc{}, Options: Options{Method: "EVERYONE"}}},
		{"subscription id required", "post", "post.new", Params{Data: models.Doc{}, Options: Options{Method: WithSubscription}}},
		{"event without actor", "post", "post.new", Params{Data: models.Doc{}, Event: &EventSpec{ActionID: "p1", ActionType: "post"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.Publish(f.ctx, tt.channel, tt.topic, tt.params)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, f.socket.all())
	assert.Empty(t, f.store.Events.All())
}

func TestPublish_DemandSubscriptionUnion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, id := range []string{"actor", "fan", "muted", "watcher", "other"} {
		f.member(id)
	}
	f.store.Joiner.Insert("crag", models.Doc{"_id": "x", "name": "Ceuse"})
	f.subscription("fan", "actor", "member", models.StyleFollow)
	f.subscription("watcher", "x", "crag", models.StyleWatch)
	f.subscription("other", "x", "crag", models.StyleFollow)
	muted := &models.Subscription{
		SubscriberID: "muted",
		SubscribeeID: "actor",
		Mute:         true,
		Meta:         models.SubscriptionMeta{Type: "member", Style: models.StyleFollow},
	}
	require.NoError(t, f.store.Subscriptions.Create(f.ctx, muted))

	ascent := f.store.Joiner.Insert("ascent", models.Doc{"_id": "asc", "author_id": "actor", "crag_id": "x", "name": "Chouca"})
	err := f.engine.Publish(f.ctx, "ascent", "ascent.new", Params{
		Data:   ascent,
		Event:  &EventSpec{ActorID: "actor", TargetID: "x", ActionID: "asc", ActionType: "ascent"},
		Notify: Notify{Subscriber: true},
	})
	require.NoError(t, err)

	var notified []string
	for _, n := range f.store.Notifications.All() {
		notified = append(notified, n.SubscriberID)
	}
	assert.ElementsMatch(t, []string{"fan", "watcher"}, notified)

	view, ok := f.socket.find("mem-fan", "event.new")
	require.True(t, ok)
	assert.Equal(t, "Ceuse", view.Doc("action").Doc("crag").Str("name"))
}

func TestPublish_FollowerWhoAlsoWatchesIsNotifiedOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member("a")
	f.member("b")
	f.subscription("a", "b", "member", models.StyleFollow)
	f.subscription("a", "p1", "post", models.StyleWatch)
	seedPost(f, "p1", "b", 0)
	comment := f.store.Joiner.Insert("comment", models.Doc{
		"_id": "c1", "parent_id": "p1", "parent_type": "post", "author_id": "b", "body": "nice",
	})

	err := f.engine.Publish(f.ctx, "comment", "comment.new", Params{
		Data:   comment,
		Event:  &EventSpec{ActorID: "b", TargetID: "p1", ActionID: "c1", ActionType: "comment"},
		Notify: Notify{Subscriber: true},
	})
	require.NoError(t, err)

	assert.Len(t, f.notesFor("a"), 1)
	assert.Equal(t, []string{"event.new", "notification.new"}, f.socket.on("mem-a"))
}

func TestPublish_WatchFromAuthor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member("author")
	f.member("commenter")
	f.member("lurker")
	f.subscription("author", "p1", "post", models.StyleWatch)
	f.subscription("lurker", "p1", "post", models.StyleWatch)
	seedPost(f, "p1", "author", 0)
	comment := f.store.Joiner.Insert("comment", models.Doc{"_id": "c1", "parent_id": "p1", "parent_type": "post", "author_id": "commenter"})

	err := f.engine.Publish(f.ctx, "comment", "comment.new", Params{
		Data: comment,
		Event: &EventSpec{
			ActorID:        "commenter",
			TargetID:       "p1",
			TargetAuthorID: "author",
			ActionID:       "c1",
			ActionType:     "comment",
		},
		Options: Options{Method: DemandWatchSubscriptionFromAuthor},
		Notify:  Notify{Subscriber: true},
	})
	require.NoError(t, err)

	notes := f.store.Notifications.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "author", notes[0].SubscriberID)

	view, ok := f.socket.find("mem-author", "event.new")
	require.True(t, ok)
	assert.Equal(t, "commenter-user", view.Doc("action").Doc("author").Str("username"))
	assert.Equal(t, "p1", view.Doc("target").ID())
	assert.NotNil(t, view.Doc("target")["comments"])
}

func TestPublish_DemandWatchDropsDeniedRecipients(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, id := range []string{"owner", "fan", "stranger", "commenter"} {
		f.member(id)
	}
	f.store.Joiner.Insert("crag", models.Doc{"_id": "x", "author_id": "owner", "privacy": "followers"})
	f.subscription("fan", "owner", "member", models.StyleFollow)
	f.subscription("fan", "x", "crag", models.StyleWatch)
	f.subscription("stranger", "x", "crag", models.StyleWatch)
	comment := f.store.Joiner.Insert("comment", models.Doc{"_id": "c1", "parent_id": "x", "parent_type": "crag", "author_id": "commenter"})

	err := f.engine.Publish(f.ctx, "comment", "comment.new", Params{
		Data:    comment,
		Event:   &EventSpec{ActorID: "commenter", TargetID: "x", ActionID: "c1", ActionType: "comment"},
		Options: Options{Method: DemandWatchSubscription},
		Notify:  Notify{Subscriber: true},
	})
	require.NoError(t, err)

	notes := f.store.Notifications.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "fan", notes[0].SubscriberID)
	assert.Equal(t, []string{"event.new", "notification.new"}, f.socket.on("mem-fan"))
	assert.Empty(t, f.socket.on("mem-stranger"))
}

func TestPublish_SelfNotificationSuppressed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member("a")
	f.member("b")
	sub := f.subscription("a", "b", "member", models.StyleFollow)

	err := f.engine.Publish(f.ctx, "follow", "follow.new", Params{
		Data:    sub.Doc(),
		Event:   &EventSpec{ActorID: "a", TargetID: "b", ActionID: sub.ID, ActionType: "follow"},
		Options: Options{Method: WithSubscription, SubscriptionID: sub.ID},
		Notify:  Notify{Subscriber: true, Subscribee: true},
	})
	require.NoError(t, err)

	notes := f.store.Notifications.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "b", notes[0].SubscriberID)
}

func TestPublish_AmendsExistingEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member("a")
	f.member("b")
	sub := f.subscription("a", "b", "member", models.StyleRequest)
	event := &models.Event{ActorID: "a", TargetID: "b", ActionID: sub.ID, ActionType: "request", Public: true}
	require.NoError(t, f.store.Events.Create(f.ctx, event))

	err := f.engine.Publish(f.ctx, "request", "request.new", Params{
		Data: sub.Doc(),
		Event: &EventSpec{
			ID:  event.ID,
			Set: models.Doc{"action_type": "follow", "data.action.t": "follow"},
		},
		Options: Options{Method: WithSubscription, SubscriptionID: sub.ID},
		Notify:  Notify{Subscribee: true},
	})
	require.NoError(t, err)

	events := f.store.Events.All()
	require.Len(t, events, 1)
	assert.Equal(t, "follow", events[0].ActionType)
	assert.Equal(t, "follow", events[0].Data.Action.Str("t"))
	assert.Len(t, f.notesFor("b"), 1)

	err = f.engine.Publish(f.ctx, "request", "request.new", Params{
		Data:  sub.Doc(),
		Event: &EventSpec{ID: "missing", Set: models.Doc{"public": false}},
	})
	assert.Error(t, err)
}

func TestPublish_EmailGate(t *testing.T) {
	t.Parallel()
	wantsEmail := func(m *models.Member) {
		m.PrimaryEmail = m.ID + "@example.com"
		m.Config.Notifications = map[string]models.ChannelPreference{"post": {Email: true}}
	}

	t.Run("delivered in production", func(t *testing.T) {
		f := newFixture(t, func(c *Config) { c.DeliveryEnabled = true })
		f.member("a", wantsEmail)
		f.member("b")
		f.member("c", func(m *models.Member) { m.PrimaryEmail = "c@example.com" })
		f.member("d", func(m *models.Member) {
			m.Config.Notifications = map[string]models.ChannelPreference{"post": {Email: true}}
		})
		for _, id := range []string{"a", "c", "d"} {
			f.subscription(id, "b", "member", models.StyleFollow)
		}
		post := seedPost(f, "p1", "b", 0)
		post["body"] = "New post from b"

		require.NoError(t, f.engine.Publish(f.ctx, "post", "post.new", Params{
			Data:   post,
			Event:  &EventSpec{ActorID: "b", ActionID: "p1", ActionType: "post"},
			Notify: Notify{Subscriber: true},
		}))
		f.engine.Drain()

		assert.Equal(t, []string{"a"}, f.mailer.recipients())
		assert.Equal(t, "New post from b", f.mailer.sent[0].body)
		assert.Len(t, f.store.Notifications.All(), 3)
	})

	t.Run("not delivered outside production", func(t *testing.T) {
		f := newFixture(t)
		f.member("a", wantsEmail)
		f.member("b")
		f.subscription("a", "b", "member", models.StyleFollow)
		post := seedPost(f, "p1", "b", 0)

		require.NoError(t, f.engine.Publish(f.ctx, "post", "post.new", Params{
			Data:   post,
			Event:  &EventSpec{ActorID: "b", ActionID: "p1", ActionType: "post"},
			Notify: Notify{Subscriber: true},
		}))
		f.engine.Drain()
		assert.Empty(t, f.mailer.recipients())
	})

	t.Run("failure is not propagated", func(t *testing.T) {
		f := newFixture(t, func(c *Config) { c.DeliveryEnabled = true })
		f.mailer.err = errors.New("smtp down")
		f.member("a", wantsEmail)
		f.member("b")
		f.subscription("a", "b", "member", models.StyleFollow)
		post := seedPost(f, "p1", "b", 0)

		require.NoError(t, f.engine.Publish(f.ctx, "post", "post.new", Params{
			Data:   post,
			Event:  &EventSpec{ActorID: "b", ActionID: "p1", ActionType: "post"},
			Notify: Notify{Subscriber: true},
		}))
		f.engine.Drain()
		assert.Equal(t, []string{"a"}, f.mailer.recipients())
		assert.Len(t, f.store.Notifications.All(), 1)
	})
}

func TestPublish_StoreFailureIsReturned(t *testing.T) {
	t.Parallel()
	boom := errors.New("insert failed")
	f := newFixture(t, func(c *Config) {
		c.Notifications = failingNotifications{NotificationRepository: c.Notifications, err: boom}
	})
	f.member("a")
	f.member("b")
	f.subscription("a", "b", "member", models.StyleFollow)
	post := seedPost(f, "p1", "b", 0)

	err := f.engine.Publish(f.ctx, "post", "post.new", Params{
		Data:   post,
		Event:  &EventSpec{ActorID: "b", ActionID: "p1", ActionType: "post"},
		Notify: Notify{Subscriber: true},
	})
	assert.ErrorIs(t, err, boom)
	// the event stays recorded
	assert.Len(t, f.store.Events.All(), 1)
}

func TestPublish_WithoutSocket(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) { c.Socket = nil })
	f.member("a")
	f.member("b")
	f.subscription("a", "b", "member", models.StyleFollow)
	post := seedPost(f, "p1", "b", 0)

	require.NoError(t, f.engine.Publish(f.ctx, "post", "post.new", Params{
		Data:   post,
		Event:  &EventSpec{ActorID: "b", ActionID: "p1", ActionType: "post"},
		Notify: Notify{Subscriber: true},
	}))
	assert.Len(t, f.store.Notifications.All(), 1)
}
