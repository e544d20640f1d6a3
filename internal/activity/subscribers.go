package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/kinship/backend/internal/events"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
)

// Subscribe registers the recorder's reactions to domain events.
func (r *Recorder) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.FriendshipAccepted, r.onFriendshipAccepted)
	bus.Subscribe(events.FriendshipRemoved, r.onFriendshipRemoved)
	bus.Subscribe(events.ProfileUpdated, r.onProfileUpdated)
	bus.Subscribe(events.MemberRegistered, r.onMemberRegistered)
	bus.Subscribe(events.MemberAvatarChanged, r.onAvatarChanged)
}

// onFriendshipAccepted records the new friendship once per member. The
// friend's copy is hidden from the sitewide stream so it shows only once there.
func (r *Recorder) onFriendshipAccepted(ctx context.Context, evt events.Event) error {
	id := evt.Payload["friendshipId"]
	initiator := evt.Payload["initiatorId"]
	friend := evt.Payload["friendId"]
	if id == "" || initiator == "" || friend == "" {
		return fmt.Errorf("friendship event missing identifiers: %v", evt.Payload)
	}

	if _, err := r.Record(ctx, RecordArgs{
		UserID:          initiator,
		Component:       ComponentFriends,
		Type:            TypeFriendshipCreated,
		ItemID:          id,
		SecondaryItemID: friend,
		RelatedUserID:   friend,
	}); err != nil {
		return err
	}
	_, err := r.Record(ctx, RecordArgs{
		UserID:          friend,
		Component:       ComponentFriends,
		Type:            TypeFriendshipCreated,
		ItemID:          id,
		SecondaryItemID: initiator,
		HideSitewide:    true,
		RelatedUserID:   initiator,
	})
	return err
}

func (r *Recorder) onFriendshipRemoved(ctx context.Context, evt events.Event) error {
	id := evt.Payload["friendshipId"]
	if id == "" {
		return fmt.Errorf("friendship event missing id")
	}
	n, err := r.DeleteForItem(ctx, models.ActivityItemFilter{
		Component: ComponentFriends,
		Type:      TypeFriendshipCreated,
		ItemID:    id,
	})
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Debug("removed friendship activity", "friendshipId", id, "count", n)
	return nil
}

func (r *Recorder) onProfileUpdated(ctx context.Context, evt events.Event) error {
	return r.recordIgnoringThrottle(ctx, RecordArgs{
		UserID:    evt.ActorID,
		Component: ComponentProfile,
		Type:      TypeUpdatedProfile,
	})
}

func (r *Recorder) onMemberRegistered(ctx context.Context, evt events.Event) error {
	return r.recordIgnoringThrottle(ctx, RecordArgs{
		UserID:    evt.ActorID,
		Component: ComponentMembers,
		Type:      TypeNewMember,
	})
}

func (r *Recorder) onAvatarChanged(ctx context.Context, evt events.Event) error {
	return r.recordIgnoringThrottle(ctx, RecordArgs{
		UserID:    evt.ActorID,
		Component: ComponentProfile,
		Type:      TypeNewAvatar,
	})
}

func (r *Recorder) recordIgnoringThrottle(ctx context.Context, args RecordArgs) error {
	if args.UserID == "" {
		return fmt.Errorf("%s event without actor", args.Type)
	}
	_, err := r.Record(ctx, args)
	if errors.Is(err, ErrThrottled) {
		logging.FromContext(ctx).Debug("activity throttled", "userId", args.UserID, "type", args.Type)
		return nil
	}
	return err
}
