package model

// Descriptor identifies one subscribable EventSub notification kind:
// the wire type, its version, and how the transport condition is keyed.
// BroadcasterKey and UserKey name the condition fields that receive the
// broadcaster id and the authenticated user id; either may be empty.
type Descriptor struct {
	Name           string
	EventType      string
	Version        string
	BroadcasterKey string
	UserKey        string
}

// Condition builds the subscription condition object for this
// descriptor from the broadcaster and user ids.
func (d Descriptor) Condition(broadcasterID, userID string) map[string]string {
	condition := make(map[string]string, 2)
	if d.BroadcasterKey != "" {
		condition[d.BroadcasterKey] = broadcasterID
	}
	if d.UserKey != "" {
		condition[d.UserKey] = userID
	}
	return condition
}

// MandatoryEvents are always subscribed regardless of which handlers
// are registered.
var MandatoryEvents = []string{"channel_update", "user_update", "stream_online", "stream_offline"}

// descriptors maps friendly event names to their wire descriptors.
// The table follows the provider's published type/version/condition
// matrix and may grow as new event kinds ship.
var descriptors = map[string]Descriptor{
	"automod_message_hold":     {EventType: "automod.message.hold", Version: "2", BroadcasterKey: "moderator_user_id", UserKey: "broadcaster_user_id"},
	"automod_message_update":   {EventType: "automod.message.update", Version: "2", BroadcasterKey: "moderator_user_id", UserKey: "broadcaster_user_id"},
	"automod_settings_update":  {EventType: "automod.settings.update", Version: "1", BroadcasterKey: "moderator_user_id", UserKey: "broadcaster_user_id"},
	"automod_terms_update":     {EventType: "automod.terms.update", Version: "1", BroadcasterKey: "moderator_user_id", UserKey: "broadcaster_user_id"},
	"bits_use":                 {EventType: "channel.bits.use", Version: "1", UserKey: "broadcaster_user_id"},
	"channel_update":           {EventType: "channel.update", Version: "2", UserKey: "broadcaster_user_id"},
	"follow":                   {EventType: "channel.follow", Version: "2", BroadcasterKey: "moderator_user_id", UserKey: "broadcaster_user_id"},
	"ad_break_begin":           {EventType: "channel.ad_break.begin", Version: "1", UserKey: "broadcaster_user_id"},
	"chat_clear":               {EventType: "channel.chat.clear", Version: "1", BroadcasterKey: "user_id", UserKey: "broadcaster_user_id"},
	"chat_clear_user_messages": {EventType: "channel.chat.clear_user_messages", Version: "1", BroadcasterKey: "user_id", UserKey: "broadcaster_user_id"},
	"chat_message":             {EventType: "channel.chat.message", Version: "1", BroadcasterKey: "user_id", UserKey: "broadcaster_user_id"},
	"chat_message_delete":      {EventType: "channel.chat.message_delete", Version: "1", BroadcasterKey: "user_id", UserKey: "broadcaster_user_id"},
	"chat_notification":        {EventType: "channel.chat.notification", Version: "1", BroadcasterKey: "user_id", UserKey: "broadcaster_user_id"},
	"chat_settings_update":     {EventType: "channel.chat_settings.update", Version: "1", BroadcasterKey: "user_id", UserKey: "broadcaster_user_id"},
	"shared_chat_begin":        {EventType: "channel.shared_chat.begin", Version: "1", UserKey: "broadcaster_user_id"},
	"shared_chat_update":       {EventType: "channel.shared_chat.update", Version: "1", UserKey: "broadcaster_user_id"},
	"shared_chat_end":          {EventType: "channel.shared_chat.end", Version: "1", UserKey: "broadcaster_user_id"},
	"subscribe":                {EventType: "channel.subscribe", Version: "1", UserKey: "broadcaster_user_id"},
	"subscription_end":         {EventType: "channel.subscription.end", Version: "1", UserKey: "broadcaster_user_id"},
	"subscription_gift":        {EventType: "channel.subscription.gift", Version: "1", UserKey: "broadcaster_user_id"},
	"subscription_message":     {EventType: "channel.subscription.message", Version: "1", UserKey: "broadcaster_user_id"},
	"cheer":                    {EventType: "channel.cheer", Version: "1", UserKey: "broadcaster_user_id"},
	"raid":                     {EventType: "channel.raid", Version: "1", UserKey: "to_broadcaster_user_id"},
	"ban":                      {EventType: "channel.ban", Version: "1", UserKey: "broadcaster_user_id"},
	"unban":                    {EventType: "channel.unban", Version: "1", UserKey: "broadcaster_user_id"},
	"moderator_add":            {EventType: "channel.moderator.add", Version: "1", UserKey: "broadcaster_user_id"},
	"moderator_remove":         {EventType: "channel.moderator.remove", Version: "1", UserKey: "broadcaster_user_id"},
	"points_reward_add":        {EventType: "channel.channel_points_custom_reward.add", Version: "1", UserKey: "broadcaster_user_id"},
	"points_reward_update":     {EventType: "channel.channel_points_custom_reward.update", Version: "1", UserKey: "broadcaster_user_id"},
	"points_reward_remove":     {EventType: "channel.channel_points_custom_reward.remove", Version: "1", UserKey: "broadcaster_user_id"},
	"points_reward_redemption": {EventType: "channel.channel_points_custom_reward_redemption.add", Version: "1", UserKey: "broadcaster_user_id"},
	"poll_begin":               {EventType: "channel.poll.begin", Version: "1", UserKey: "broadcaster_user_id"},
	"poll_progress":            {EventType: "channel.poll.progress", Version: "1", UserKey: "broadcaster_user_id"},
	"poll_end":                 {EventType: "channel.poll.end", Version: "1", UserKey: "broadcaster_user_id"},
	"prediction_begin":         {EventType: "channel.prediction.begin", Version: "1", UserKey: "broadcaster_user_id"},
	"prediction_progress":      {EventType: "channel.prediction.progress", Version: "1", UserKey: "broadcaster_user_id"},
	"prediction_lock":          {EventType: "channel.prediction.lock", Version: "1", UserKey: "broadcaster_user_id"},
	"prediction_end":           {EventType: "channel.prediction.end", Version: "1", UserKey: "broadcaster_user_id"},
	"goal_begin":               {EventType: "channel.goal.begin", Version: "1", UserKey: "broadcaster_user_id"},
	"goal_progress":            {EventType: "channel.goal.progress", Version: "1", UserKey: "broadcaster_user_id"},
	"goal_end":                 {EventType: "channel.goal.end", Version: "1", UserKey: "broadcaster_user_id"},
	"hype_train_begin":         {EventType: "channel.hype_train.begin", Version: "1", UserKey: "broadcaster_user_id"},
	"hype_train_progress":      {EventType: "channel.hype_train.progress", Version: "1", UserKey: "broadcaster_user_id"},
	"hype_train_end":           {EventType: "channel.hype_train.end", Version: "1", UserKey: "broadcaster_user_id"},
	"shoutout_create":          {EventType: "channel.shoutout.create", Version: "1", BroadcasterKey: "moderator_user_id", UserKey: "broadcaster_user_id"},
	"shoutout_receive":         {EventType: "channel.shoutout.receive", Version: "1", BroadcasterKey: "moderator_user_id", UserKey: "broadcaster_user_id"},
	"stream_online":            {EventType: "stream.online", Version: "1", UserKey: "broadcaster_user_id"},
	"stream_offline":           {EventType: "stream.offline", Version: "1", UserKey: "broadcaster_user_id"},
	"user_update":              {EventType: "user.update", Version: "1", UserKey: "user_id"},
	"whisper_received":         {EventType: "user.whisper.message", Version: "1", UserKey: "user_id"},
}

// LookupDescriptor returns the descriptor for a friendly event name.
func LookupDescriptor(name string) (Descriptor, bool) {
	d, ok := descriptors[name]
	if ok {
		d.Name = name
	}
	return d, ok
}

// KnownEvent reports whether name is a registered event kind.
func KnownEvent(name string) bool {
	_, ok := descriptors[name]
	return ok
}

// BuildDescriptors resolves the given event names plus the mandatory
// set into a deduplicated descriptor list. Unknown names are returned
// separately so the caller can decide whether to reject them.
func BuildDescriptors(names []string) (descs []Descriptor, unknown []string) {
	seen := make(map[string]bool, len(names)+len(MandatoryEvents))
	for _, name := range append(append([]string{}, MandatoryEvents...), names...) {
		if seen[name] {
			continue
		}
		seen[name] = true

		d, ok := LookupDescriptor(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		descs = append(descs, d)
	}
	return descs, unknown
}

// EventNameForType maps a wire event type back to its friendly name.
// Unknown types are returned unchanged so custom subscriptions still
// reach their handlers.
func EventNameForType(eventType string) string {
	for name, d := range descriptors {
		if d.EventType == eventType {
			return name
		}
	}
	return eventType
}
