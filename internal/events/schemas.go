package events

import (
	"strconv"

	"github.com/wfunc/survivor-indexer/internal/abi"
)

// 共享结构名
const (
	SchemaStats                  = "Stats"
	SchemaItem                   = "Item"
	SchemaEquipment              = "Equipment"
	SchemaAdventurer             = "Adventurer"
	SchemaAdventurerState        = "AdventurerState"
	SchemaAdventurerMetadata     = "AdventurerMetadata"
	SchemaBag                    = "Bag"
	SchemaAdventurerStateWithBag = "AdventurerStateWithBag"
	SchemaSpecialPowers          = "SpecialPowers"
	SchemaCombatSpec             = "CombatSpec"
	SchemaObstacleEvent          = "ObstacleEvent"
	SchemaLoot                   = "Loot"
	SchemaLootWithPrice          = "LootWithPrice"
	SchemaItemLeveledUp          = "ItemLeveledUp"
)

// BagSize 背包格数
const BagSize = 11

var (
	u8   = abi.Uint(8)
	u16  = abi.Uint(16)
	u64  = abi.Uint(64)
	u128 = abi.Uint(128)
	felt = abi.Felt()
)

func sharedSchemas() []abi.Schema {
	bag := make([]abi.Field, 0, BagSize+1)
	for i := 1; i <= BagSize; i++ {
		bag = append(bag, abi.F(bagSlot(i), abi.Struct(SchemaItem)))
	}
	bag = append(bag, abi.F("mutated", abi.Bool()))

	return []abi.Schema{
		abi.NewSchema(SchemaStats,
			abi.F("strength", u8),
			abi.F("dexterity", u8),
			abi.F("vitality", u8),
			abi.F("intelligence", u8),
			abi.F("wisdom", u8),
			abi.F("charisma", u8),
			abi.F("luck", u8),
		),
		abi.NewSchema(SchemaItem,
			abi.F("id", u8),
			abi.F("xp", u16),
		),
		abi.NewSchema(SchemaEquipment,
			abi.F("weapon", abi.Struct(SchemaItem)),
			abi.F("chest", abi.Struct(SchemaItem)),
			abi.F("head", abi.Struct(SchemaItem)),
			abi.F("waist", abi.Struct(SchemaItem)),
			abi.F("foot", abi.Struct(SchemaItem)),
			abi.F("hand", abi.Struct(SchemaItem)),
			abi.F("neck", abi.Struct(SchemaItem)),
			abi.F("ring", abi.Struct(SchemaItem)),
		),
		abi.NewSchema(SchemaAdventurer,
			abi.F("last_action_block", u16),
			abi.F("health", u16),
			abi.F("xp", u16),
			abi.F("stats", abi.Struct(SchemaStats)),
			abi.F("gold", u16),
			abi.F("equipment", abi.Struct(SchemaEquipment)),
			abi.F("beast_health", u16),
			abi.F("stat_upgrades_available", u8),
		),
		abi.NewSchema(SchemaAdventurerState,
			abi.F("owner", felt),
			abi.F("adventurer_id", felt),
			abi.F("adventurer", abi.Struct(SchemaAdventurer)),
		),
		abi.NewSchema(SchemaAdventurerMetadata,
			abi.F("start_block", u64),
			abi.F("name", abi.Bytes(31)),
		),
		abi.NewSchema(SchemaBag, bag...),
		abi.NewSchema(SchemaAdventurerStateWithBag,
			abi.F("adventurer_state", abi.Struct(SchemaAdventurerState)),
			abi.F("bag", abi.Struct(SchemaBag)),
		),
		abi.NewSchema(SchemaSpecialPowers,
			abi.F("special1", u8),
			abi.F("special2", u8),
			abi.F("special3", u8),
		),
		abi.NewSchema(SchemaCombatSpec,
			abi.F("tier", u8),
			abi.F("item_type", u8),
			abi.F("level", u16),
			abi.F("specials", abi.Struct(SchemaSpecialPowers)),
		),
		abi.NewSchema(SchemaObstacleEvent,
			abi.F("id", u8),
			abi.F("level", u16),
			abi.F("damage_taken", u16),
			abi.F("damage_location", u8),
			abi.F("critical_hit", abi.Bool()),
			abi.F("adventurer_xp_reward", u16),
			abi.F("item_xp_reward", u16),
		),
		abi.NewSchema(SchemaLoot,
			abi.F("id", u8),
			abi.F("tier", u8),
			abi.F("item_type", u8),
			abi.F("slot", u8),
		),
		abi.NewSchema(SchemaLootWithPrice,
			abi.F("item", abi.Struct(SchemaLoot)),
			abi.F("price", u16),
		),
		abi.NewSchema(SchemaItemLeveledUp,
			abi.F("item_id", u8),
			abi.F("previous_level", u8),
			abi.F("new_level", u8),
			abi.F("suffix_unlocked", abi.Bool()),
			abi.F("prefixes_unlocked", abi.Bool()),
			abi.F("specials", abi.Struct(SchemaSpecialPowers)),
		),
	}
}

func bagSlot(i int) string {
	return "item_" + strconv.Itoa(i)
}

func state() abi.Field {
	return abi.F("adventurer_state", abi.Struct(SchemaAdventurerState))
}

func stateWithBag() abi.Field {
	return abi.F("adventurer_state_with_bag", abi.Struct(SchemaAdventurerStateWithBag))
}

func beastFields(extra ...abi.Field) []abi.Field {
	fields := []abi.Field{
		state(),
		abi.F("seed", u128),
		abi.F("id", u8),
		abi.F("beast_specs", abi.Struct(SchemaCombatSpec)),
	}
	return append(fields, extra...)
}

// eventSchemas 每种事件的负载布局，结构名与事件名一致
func eventSchemas() map[Kind][]abi.Field {
	damage := []abi.Field{
		abi.F("damage", u16),
		abi.F("critical_hit", abi.Bool()),
		abi.F("location", u8),
	}

	return map[Kind][]abi.Field{
		KindStartGame: {
			state(),
			abi.F("adventurer_meta", abi.Struct(SchemaAdventurerMetadata)),
			abi.F("reveal_block", u64),
		},
		KindAdventurerUpgraded: {
			stateWithBag(),
			abi.F("strength_increase", u8),
			abi.F("dexterity_increase", u8),
			abi.F("vitality_increase", u8),
			abi.F("intelligence_increase", u8),
			abi.F("wisdom_increase", u8),
			abi.F("charisma_increase", u8),
		},
		KindDiscoveredHealth: {state(), abi.F("amount", u16)},
		KindDiscoveredGold:   {state(), abi.F("amount", u16)},
		KindDiscoveredXP:     {state(), abi.F("amount", u16)},
		KindDodgedObstacle:   {state(), abi.F("obstacle", abi.Struct(SchemaObstacleEvent))},
		KindHitByObstacle:    {state(), abi.F("obstacle", abi.Struct(SchemaObstacleEvent))},
		KindDiscoveredBeast:  beastFields(),
		KindAmbushedByBeast:  beastFields(damage...),
		KindAttackedBeast:    beastFields(damage...),
		KindAttackedByBeast:  beastFields(damage...),
		KindSlayedBeast: beastFields(
			abi.F("damage_dealt", u16),
			abi.F("critical_hit", abi.Bool()),
			abi.F("xp_earned_adventurer", u16),
			abi.F("xp_earned_items", u16),
			abi.F("gold_earned", u16),
		),
		KindFleeFailed:    beastFields(),
		KindFleeSucceeded: beastFields(),
		KindIdleDeathPenalty: {
			state(),
			abi.F("idle_blocks", u16),
			abi.F("penalty_threshold", u16),
			abi.F("caller", felt),
		},
		KindPurchasedItems: {
			stateWithBag(),
			abi.F("purchases", abi.Array(abi.Struct(SchemaLootWithPrice))),
		},
		KindPurchasedPotions: {
			state(),
			abi.F("quantity", u8),
			abi.F("cost", u16),
			abi.F("health", u16),
		},
		KindNewItemsAvailable: {
			state(),
			abi.F("items", abi.Array(abi.Struct(SchemaLootWithPrice))),
		},
		KindEquippedItems: {
			stateWithBag(),
			abi.F("equipped_items", abi.Array(u8)),
			abi.F("unequipped_items", abi.Array(u8)),
		},
		KindDroppedItems: {
			stateWithBag(),
			abi.F("item_ids", abi.Array(u8)),
		},
		KindItemSpecialUnlocked: {
			state(),
			abi.F("id", u8),
			abi.F("level", u8),
			abi.F("specials", abi.Struct(SchemaSpecialPowers)),
		},
		KindItemsLeveledUp: {
			state(),
			abi.F("items", abi.Array(abi.Struct(SchemaItemLeveledUp))),
		},
		KindNewHighScore: {
			state(),
			abi.F("rank", u8),
			abi.F("prize", abi.U256()),
		},
		KindAdventurerDied: {
			state(),
			abi.F("killed_by_beast", u8),
			abi.F("killed_by_obstacle", u8),
			abi.F("caller_address", felt),
		},
		KindAdventurerLeveledUp: {
			state(),
			abi.F("previous_level", u8),
			abi.F("new_level", u8),
		},
	}
}

// NewRegistry 构造包含共享结构和全部事件结构的定义表
func NewRegistry() (*abi.Registry, error) {
	schemas := sharedSchemas()
	layouts := eventSchemas()
	for _, k := range AllKinds() {
		schemas = append(schemas, abi.NewSchema(k.String(), layouts[k]...))
	}
	return abi.NewRegistry(schemas...)
}
