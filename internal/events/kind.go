package events

import (
	"fmt"
	"math/big"

	"github.com/wfunc/survivor-indexer/internal/codec"
	"golang.org/x/crypto/sha3"
)

// Kind 事件种类（封闭枚举）
type Kind int

const (
	KindStartGame Kind = iota + 1
	KindAdventurerUpgraded
	KindDiscoveredHealth
	KindDiscoveredGold
	KindDiscoveredXP
	KindDodgedObstacle
	KindHitByObstacle
	KindDiscoveredBeast
	KindAmbushedByBeast
	KindAttackedBeast
	KindAttackedByBeast
	KindSlayedBeast
	KindFleeFailed
	KindFleeSucceeded
	KindIdleDeathPenalty
	KindPurchasedItems
	KindPurchasedPotions
	KindNewItemsAvailable
	KindEquippedItems
	KindDroppedItems
	KindItemSpecialUnlocked
	KindItemsLeveledUp
	KindNewHighScore
	KindAdventurerDied
	KindAdventurerLeveledUp
)

var kindNames = [...]string{
	KindStartGame:           "StartGame",
	KindAdventurerUpgraded:  "AdventurerUpgraded",
	KindDiscoveredHealth:    "DiscoveredHealth",
	KindDiscoveredGold:      "DiscoveredGold",
	KindDiscoveredXP:        "DiscoveredXP",
	KindDodgedObstacle:      "DodgedObstacle",
	KindHitByObstacle:       "HitByObstacle",
	KindDiscoveredBeast:     "DiscoveredBeast",
	KindAmbushedByBeast:     "AmbushedByBeast",
	KindAttackedBeast:       "AttackedBeast",
	KindAttackedByBeast:     "AttackedByBeast",
	KindSlayedBeast:         "SlayedBeast",
	KindFleeFailed:          "FleeFailed",
	KindFleeSucceeded:       "FleeSucceeded",
	KindIdleDeathPenalty:    "IdleDeathPenalty",
	KindPurchasedItems:      "PurchasedItems",
	KindPurchasedPotions:    "PurchasedPotions",
	KindNewItemsAvailable:   "NewItemsAvailable",
	KindEquippedItems:       "EquippedItems",
	KindDroppedItems:        "DroppedItems",
	KindItemSpecialUnlocked: "ItemSpecialUnlocked",
	KindItemsLeveledUp:      "ItemsLeveledUp",
	KindNewHighScore:        "NewHighScore",
	KindAdventurerDied:      "AdventurerDied",
	KindAdventurerLeveledUp: "AdventurerLeveledUp",
}

// AllKinds 所有事件种类
func AllKinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames)-1)
	for k := KindStartGame; k <= KindAdventurerLeveledUp; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// String 事件名（即合约中声明的名称）
func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind 由事件名查找种类
func ParseKind(name string) (Kind, bool) {
	for _, k := range AllKinds() {
		if kindNames[k] == name {
			return k, true
		}
	}
	return 0, false
}

var selectorMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// SelectorOf 事件名的选择器：Keccak-256 取低250位
func SelectorOf(name string) codec.Felt {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	v := new(big.Int).SetBytes(h.Sum(nil))
	return codec.MustFelt("0x" + v.And(v, selectorMask).Text(16))
}
