package adapter

import "time"

// HostEventType is the closed vocabulary of host gameplay notifications
// the adapter understands. Host-native event shapes never reach the
// engine; everything funnels through these tags.
type HostEventType string

const (
	EventBlockBreak      HostEventType = "BLOCK_BREAK"
	EventBlockPlace      HostEventType = "BLOCK_PLACE"
	EventItemCraft       HostEventType = "ITEM_CRAFT"
	EventItemPickup      HostEventType = "ITEM_PICKUP"
	EventItemConsume     HostEventType = "ITEM_CONSUME"
	EventItemSmelt       HostEventType = "ITEM_SMELT"
	EventEntityKill      HostEventType = "ENTITY_KILL"
	EventEntityTame      HostEventType = "ENTITY_TAME"
	EventEntityBreed     HostEventType = "ENTITY_BREED"
	EventAdvancementDone HostEventType = "ADVANCEMENT_DONE"
	EventFishCaught      HostEventType = "FISH_CAUGHT"
	EventBiomeEnter      HostEventType = "BIOME_ENTER"
	EventDimensionEnter  HostEventType = "DIMENSION_ENTER"
	EventPlayerDeath     HostEventType = "PLAYER_DEATH"
	EventPlayerLevelUp   HostEventType = "PLAYER_LEVEL_UP"
	EventEnchantItem     HostEventType = "ENCHANT_ITEM"
	EventTradeVillager   HostEventType = "TRADE_VILLAGER"
)

// Known reports whether the event type belongs to the tracked vocabulary.
func (t HostEventType) Known() bool {
	switch t {
	case EventBlockBreak, EventBlockPlace, EventItemCraft, EventItemPickup,
		EventItemConsume, EventItemSmelt, EventEntityKill, EventEntityTame,
		EventEntityBreed, EventAdvancementDone, EventFishCaught,
		EventBiomeEnter, EventDimensionEnter, EventPlayerDeath,
		EventPlayerLevelUp, EventEnchantItem, EventTradeVillager:
		return true
	default:
		return false
	}
}

// HostEvent is a raw gameplay notification from the host server.
// Detail optionally narrows the action (block type, entity type, item
// id); delivery is at-least-once and unordered across players.
type HostEvent struct {
	Type       HostEventType
	PlayerID   string
	Detail     string
	OccurredAt time.Time
}

// ObjectiveEvent is the engine-native form of a host event, resolved to
// the instance and team the acting player belongs to.
type ObjectiveEvent struct {
	InstanceID string
	TeamID     string
	Category   string
	PlayerID   string
	OccurredAt time.Time
}
