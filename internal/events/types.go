// Package events 定义游戏合约的事件目录：事件种类、选择器、负载布局以及解码后的强类型事件。
package events

import (
	"math/big"

	"github.com/wfunc/survivor-indexer/internal/codec"
)

// Opt 可选值，用于区分"不存在"和合法的0
type Opt[T any] struct {
	val T
	ok  bool
}

// Some 存在的值
func Some[T any](v T) Opt[T] {
	return Opt[T]{val: v, ok: true}
}

// None 不存在
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// OptID 合约用0表示空引用
func OptID(id uint8) Opt[uint8] {
	if id == 0 {
		return None[uint8]()
	}
	return Some(id)
}

// Get 返回值和是否存在
func (o Opt[T]) Get() (T, bool) {
	return o.val, o.ok
}

// Valid 是否存在
func (o Opt[T]) Valid() bool {
	return o.ok
}

// Or 不存在时返回默认值
func (o Opt[T]) Or(def T) T {
	if o.ok {
		return o.val
	}
	return def
}

// Stats 属性
type Stats struct {
	Strength     uint8
	Dexterity    uint8
	Vitality     uint8
	Intelligence uint8
	Wisdom       uint8
	Charisma     uint8
	Luck         uint8
}

// Item 装备或背包中的物品，ID 为空表示空位
type Item struct {
	ID Opt[uint8]
	XP uint16
}

// Slot 装备槽位
type Slot string

const (
	SlotWeapon Slot = "weapon"
	SlotChest  Slot = "chest"
	SlotHead   Slot = "head"
	SlotWaist  Slot = "waist"
	SlotFoot   Slot = "foot"
	SlotHand   Slot = "hand"
	SlotNeck   Slot = "neck"
	SlotRing   Slot = "ring"
)

// Slots 槽位顺序与负载布局一致
var Slots = [...]Slot{SlotWeapon, SlotChest, SlotHead, SlotWaist, SlotFoot, SlotHand, SlotNeck, SlotRing}

// Equipment 八个装备槽位
type Equipment struct {
	Weapon Item
	Chest  Item
	Head   Item
	Waist  Item
	Foot   Item
	Hand   Item
	Neck   Item
	Ring   Item
}

// Get 按槽位取物品
func (e Equipment) Get(s Slot) Item {
	switch s {
	case SlotWeapon:
		return e.Weapon
	case SlotChest:
		return e.Chest
	case SlotHead:
		return e.Head
	case SlotWaist:
		return e.Waist
	case SlotFoot:
		return e.Foot
	case SlotHand:
		return e.Hand
	case SlotNeck:
		return e.Neck
	case SlotRing:
		return e.Ring
	}
	return Item{}
}

// Adventurer 冒险者快照
type Adventurer struct {
	LastActionBlock       uint16
	Health                uint16
	XP                    uint16
	Stats                 Stats
	Gold                  uint16
	Equipment             Equipment
	BeastHealth           uint16
	StatUpgradesAvailable uint8
}

// AdventurerState 几乎每个事件都携带的冒险者状态
type AdventurerState struct {
	Owner        codec.Felt
	AdventurerID codec.Felt
	Adventurer   Adventurer
}

// AdventurerMetadata 创建时的元数据
type AdventurerMetadata struct {
	StartBlock uint64
	Name       string
}

// Bag 背包（每次整体覆盖）
type Bag struct {
	Items   [BagSize]Item
	Mutated bool
}

// SpecialPowers 三个特性，0表示未解锁
type SpecialPowers struct {
	Special1 Opt[uint8]
	Special2 Opt[uint8]
	Special3 Opt[uint8]
}

// CombatSpec 野兽或物品的战斗属性
type CombatSpec struct {
	Tier     uint8
	ItemType uint8
	Level    uint16
	Specials SpecialPowers
}

// Obstacle 障碍结果
type Obstacle struct {
	ID                 uint8
	Level              uint16
	DamageTaken        uint16
	DamageLocation     uint8
	CriticalHit        bool
	AdventurerXPReward uint16
	ItemXPReward       uint16
}

// Loot 商店物品
type Loot struct {
	ID       uint8
	Tier     uint8
	ItemType uint8
	Slot     uint8
}

// LootWithPrice 带价格的商店物品
type LootWithPrice struct {
	Loot
	Price uint16
}

// ItemLevel 物品升级结果
type ItemLevel struct {
	ItemID           uint8
	PreviousLevel    uint8
	NewLevel         uint8
	SuffixUnlocked   bool
	PrefixesUnlocked bool
	Specials         SpecialPowers
}

// Encounter 一次野兽遭遇的标识，Seed 区分同一野兽的多次遭遇
type Encounter struct {
	Seed    *big.Int
	BeastID uint8
	Specs   CombatSpec
}

// Strike 一次攻击
type Strike struct {
	Damage      uint16
	CriticalHit bool
	Location    uint8
}

// Event 解码后的事件（封闭集合，只有本包的类型实现）
type Event interface {
	Kind() Kind
	AdventurerState() AdventurerState
	sealed()
}

// BagEvent 携带背包快照的事件
type BagEvent interface {
	Event
	BagState() Bag
}

// Envelope 事件共有的冒险者状态
type Envelope struct {
	State AdventurerState
}

// AdventurerState 实现 Event
func (e Envelope) AdventurerState() AdventurerState { return e.State }

func (Envelope) sealed() {}

// BagEnvelope 冒险者状态加背包
type BagEnvelope struct {
	Envelope
	Bag Bag
}

// BagState 实现 BagEvent
func (e BagEnvelope) BagState() Bag { return e.Bag }

type (
	StartGame struct {
		Envelope
		Metadata    AdventurerMetadata
		RevealBlock uint64
	}

	AdventurerUpgraded struct {
		BagEnvelope
		Increases Stats
	}

	DiscoveredHealth struct {
		Envelope
		Amount uint16
	}

	DiscoveredGold struct {
		Envelope
		Amount uint16
	}

	DiscoveredXP struct {
		Envelope
		Amount uint16
	}

	DodgedObstacle struct {
		Envelope
		Obstacle Obstacle
	}

	HitByObstacle struct {
		Envelope
		Obstacle Obstacle
	}

	DiscoveredBeast struct {
		Envelope
		Encounter
	}

	AmbushedByBeast struct {
		Envelope
		Encounter
		Strike
	}

	AttackedBeast struct {
		Envelope
		Encounter
		Strike
	}

	AttackedByBeast struct {
		Envelope
		Encounter
		Strike
	}

	SlayedBeast struct {
		Envelope
		Encounter
		DamageDealt        uint16
		CriticalHit        bool
		XPEarnedAdventurer uint16
		XPEarnedItems      uint16
		GoldEarned         uint16
	}

	FleeFailed struct {
		Envelope
		Encounter
	}

	FleeSucceeded struct {
		Envelope
		Encounter
	}

	IdleDeathPenalty struct {
		Envelope
		IdleBlocks       uint16
		PenaltyThreshold uint16
		Caller           codec.Felt
	}

	PurchasedItems struct {
		BagEnvelope
		Purchases []LootWithPrice
	}

	PurchasedPotions struct {
		Envelope
		Quantity uint8
		Cost     uint16
		Health   uint16
	}

	NewItemsAvailable struct {
		Envelope
		Items []LootWithPrice
	}

	EquippedItems struct {
		BagEnvelope
		Equipped   []uint8
		Unequipped []uint8
	}

	DroppedItems struct {
		BagEnvelope
		ItemIDs []uint8
	}

	ItemSpecialUnlocked struct {
		Envelope
		ItemID   uint8
		Level    uint8
		Specials SpecialPowers
	}

	ItemsLeveledUp struct {
		Envelope
		Items []ItemLevel
	}

	NewHighScore struct {
		Envelope
		Rank  uint8
		Prize *big.Int
	}

	AdventurerDied struct {
		Envelope
		KilledByBeast    Opt[uint8]
		KilledByObstacle Opt[uint8]
		Caller           codec.Felt
	}

	AdventurerLeveledUp struct {
		Envelope
		PreviousLevel uint8
		NewLevel      uint8
	}
)

func (StartGame) Kind() Kind           { return KindStartGame }
func (AdventurerUpgraded) Kind() Kind  { return KindAdventurerUpgraded }
func (DiscoveredHealth) Kind() Kind    { return KindDiscoveredHealth }
func (DiscoveredGold) Kind() Kind      { return KindDiscoveredGold }
func (DiscoveredXP) Kind() Kind        { return KindDiscoveredXP }
func (DodgedObstacle) Kind() Kind      { return KindDodgedObstacle }
func (HitByObstacle) Kind() Kind       { return KindHitByObstacle }
func (DiscoveredBeast) Kind() Kind     { return KindDiscoveredBeast }
func (AmbushedByBeast) Kind() Kind     { return KindAmbushedByBeast }
func (AttackedBeast) Kind() Kind       { return KindAttackedBeast }
func (AttackedByBeast) Kind() Kind     { return KindAttackedByBeast }
func (SlayedBeast) Kind() Kind         { return KindSlayedBeast }
func (FleeFailed) Kind() Kind          { return KindFleeFailed }
func (FleeSucceeded) Kind() Kind       { return KindFleeSucceeded }
func (IdleDeathPenalty) Kind() Kind    { return KindIdleDeathPenalty }
func (PurchasedItems) Kind() Kind      { return KindPurchasedItems }
func (PurchasedPotions) Kind() Kind    { return KindPurchasedPotions }
func (NewItemsAvailable) Kind() Kind   { return KindNewItemsAvailable }
func (EquippedItems) Kind() Kind       { return KindEquippedItems }
func (DroppedItems) Kind() Kind        { return KindDroppedItems }
func (ItemSpecialUnlocked) Kind() Kind { return KindItemSpecialUnlocked }
func (ItemsLeveledUp) Kind() Kind      { return KindItemsLeveledUp }
func (NewHighScore) Kind() Kind        { return KindNewHighScore }
func (AdventurerDied) Kind() Kind      { return KindAdventurerDied }
func (AdventurerLeveledUp) Kind() Kind { return KindAdventurerLeveledUp }
