package mongostore

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dmitrymomot/posnotify/pkg/notifications"
)

// channelUpdate targets the entry of e.Channel only while it still has status
// from, so two workers can never overwrite each other's outcome.
func channelUpdate(id string, from notifications.Status, e notifications.ChannelEntry, now time.Time) (filter, update bson.D) {
	filter = bson.D{
		{Key: "_id", Value: id},
		{Key: "channels", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "channel", Value: string(e.Channel)},
			{Key: "status", Value: string(from)},
		}}}},
	}
	update = bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "channels.$", Value: toChannelDoc(e)},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	}
	return filter, update
}

func statusUpdate(id string, status notifications.Status, version int64, now time.Time) (filter, update bson.D) {
	filter = bson.D{{Key: "_id", Value: id}, {Key: "version", Value: version}}
	update = bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(status)},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	}
	return filter, update
}

func claimUpdate(id string, now time.Time) (filter, update bson.D) {
	filter = bson.D{{Key: "_id", Value: id}, {Key: "processed_at", Value: nil}}
	update = bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "processed_at", Value: now},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	}
	return filter, update
}

// dueFilter does not look at the overall status: a promotion that was
// released half way leaves some entries QUEUED and the rest PENDING.
func dueFilter(now time.Time) bson.D {
	return bson.D{
		{Key: "processed_at", Value: nil},
		{Key: "scheduled_for", Value: bson.D{{Key: "$lte", Value: now}}},
	}
}

func releaseUpdate(id string, now time.Time) (filter, update bson.D) {
	filter = bson.D{{Key: "_id", Value: id}, {Key: "processed_at", Value: bson.D{{Key: "$ne", Value: nil}}}}
	update = bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "processed_at", Value: nil},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	}
	return filter, update
}

func deferredFilter(id string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "status", Value: string(notifications.StatusPending)},
		{Key: "processed_at", Value: nil},
	}
}

// feedFilter selects the user's delivered in-app records. Records still
// deferred by quiet hours or a schedule stay hidden. A zero now skips the
// expiry check.
func feedFilter(userID string, now time.Time) bson.D {
	filter := bson.D{
		{Key: "recipient.user_id", Value: userID},
		{Key: "channels", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "channel", Value: string(notifications.ChannelInApp)},
			{Key: "status", Value: string(notifications.StatusSent)},
		}}}},
	}
	if !now.IsZero() {
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "expires_at", Value: nil}},
			bson.D{{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: now}}}},
		}})
	}
	return filter
}

func listFilter(userID string, opts notifications.ListOptions) bson.D {
	filter := feedFilter(userID, opts.Now)
	if opts.OnlyUnread {
		filter = append(filter, bson.E{Key: "read_at", Value: nil})
	}
	if len(opts.Statuses) > 0 {
		statuses := make(bson.A, len(opts.Statuses))
		for i, s := range opts.Statuses {
			statuses[i] = string(s)
		}
		filter = append(filter, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: statuses}}})
	}
	if len(opts.Types) > 0 {
		types := make(bson.A, len(opts.Types))
		for i, t := range opts.Types {
			types[i] = string(t)
		}
		filter = append(filter, bson.E{Key: "type", Value: bson.D{{Key: "$in", Value: types}}})
	}
	if opts.Since != nil {
		filter = append(filter, bson.E{Key: "created_at", Value: bson.D{{Key: "$gte", Value: *opts.Since}}})
	}
	return filter
}

func markReadFilter(userID string, ids []string) bson.D {
	return append(feedFilter(userID, time.Time{}),
		bson.E{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}},
		bson.E{Key: "read_at", Value: nil},
	)
}

func analyticsPipeline(q notifications.AnalyticsQuery) bson.A {
	match := bson.D{{Key: "created_at", Value: bson.D{
		{Key: "$gte", Value: q.From},
		{Key: "$lt", Value: q.To},
	}}}
	if q.BranchID != "" {
		match = append(match, bson.E{Key: "metadata.branch_id", Value: q.BranchID})
	}

	countIf := func(cond any) bson.D {
		return bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{cond, 1, 0}}}}}
	}
	statusIs := func(s notifications.Status) bson.D {
		return bson.D{{Key: "$eq", Value: bson.A{"$status", string(s)}}}
	}

	return bson.A{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$type"},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "sent", Value: countIf(statusIs(notifications.StatusSent))},
			{Key: "failed", Value: countIf(statusIs(notifications.StatusFailed))},
			{Key: "read", Value: countIf(bson.D{{Key: "$ifNull", Value: bson.A{"$read_at", false}}})},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

type statsDoc struct {
	Type   string `bson:"_id"`
	Total  int    `bson:"total"`
	Sent   int    `bson:"sent"`
	Failed int    `bson:"failed"`
	Read   int    `bson:"read"`
}
