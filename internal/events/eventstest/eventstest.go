// Package eventstest 构造原始合约事件，供解码和物化测试使用。
package eventstest

import (
	"math/big"
	"math/rand"

	"github.com/wfunc/survivor-indexer/internal/abi"
	"github.com/wfunc/survivor-indexer/internal/abi/abitest"
	"github.com/wfunc/survivor-indexer/internal/chain"
	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/events"
)

// Sample 生成事件的随机负载记录
func Sample(cat *events.Catalog, k events.Kind, seed int64) abi.Record {
	return abitest.Sample(cat.Registry(), k.String(), rand.New(rand.NewSource(seed)))
}

// State 返回记录中的 AdventurerState 子记录（含背包的事件取内层）
func State(rec abi.Record) abi.Record {
	if sb := rec.Sub("adventurer_state_with_bag"); sb != nil {
		return sb.Sub("adventurer_state")
	}
	return rec.Sub("adventurer_state")
}

// SetAdventurer 设置冒险者标识和生命值
func SetAdventurer(rec abi.Record, id uint64, health uint16) abi.Record {
	st := State(rec)
	st["adventurer_id"] = new(big.Int).SetUint64(id)
	st.Sub("adventurer")["health"] = big.NewInt(int64(health))
	return rec
}

// SetEquipped 设置装备槽位的物品，0表示空位
func SetEquipped(rec abi.Record, slot events.Slot, itemID uint8) abi.Record {
	eq := State(rec).Sub("adventurer").Sub("equipment")
	eq.Sub(string(slot))["id"] = big.NewInt(int64(itemID))
	return rec
}

// ClearEquipment 清空全部装备槽位
func ClearEquipment(rec abi.Record) abi.Record {
	for _, s := range events.Slots {
		SetEquipped(rec, s, 0)
	}
	return rec
}

// SetEncounter 设置野兽事件的野兽、种子和冒险者快照中的野兽生命值
func SetEncounter(rec abi.Record, beast uint8, seed uint64, beastHealth uint16) abi.Record {
	rec["id"] = big.NewInt(int64(beast))
	rec["seed"] = new(big.Int).SetUint64(seed)
	State(rec).Sub("adventurer")["beast_health"] = big.NewInt(int64(beastHealth))
	return rec
}

// SetIDs 设置物品编号数组字段
func SetIDs(rec abi.Record, name string, ids ...uint8) abi.Record {
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = big.NewInt(int64(id))
	}
	rec[name] = list
	return rec
}

// Set 设置顶层整数字段
func Set(rec abi.Record, name string, v uint64) abi.Record {
	rec[name] = new(big.Int).SetUint64(v)
	return rec
}

// Raw 把记录编码为原始事件
func Raw(cat *events.Catalog, k events.Kind, rec abi.Record, from codec.Felt, index int) (chain.Event, error) {
	data, err := cat.Encode(k, rec)
	if err != nil {
		return chain.Event{}, err
	}
	return chain.Event{
		FromAddress: from,
		Keys:        []codec.Felt{cat.Selector(k)},
		Data:        data,
		TxHash:      codec.FeltFromUint64(uint64(1000 + index)),
		Index:       index,
	}, nil
}
