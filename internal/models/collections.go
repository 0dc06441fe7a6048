package models

// 集合名（即表名）
const (
	CollAdventurers   = "adventurers"
	CollItems         = "items"
	CollBags          = "bags"
	CollBeasts        = "beasts"
	CollDiscoveries   = "discoveries"
	CollBattles       = "battles"
	CollScores        = "scores"
	CollDeaths        = "deaths"
	CollLevelUps      = "level_ups"
	CollStreamCursors = "stream_cursors"
)

// Collection 集合描述
type Collection struct {
	Name  string
	Model interface{}
	// Key 自然键字段，日志集合为空
	Key []string
	// Public 是否通过查询接口开放
	Public bool
}

var collections = []Collection{
	{Name: CollAdventurers, Model: &Adventurer{}, Key: []string{"adventurer_id"}, Public: true},
	{Name: CollItems, Model: &Item{}, Key: []string{"item_id", "adventurer_id"}, Public: true},
	{Name: CollBags, Model: &Bag{}, Key: []string{"adventurer_id"}, Public: true},
	{Name: CollBeasts, Model: &Beast{}, Key: []string{"beast", "adventurer_id", "seed"}, Public: true},
	{Name: CollDiscoveries, Model: &Discovery{}, Public: true},
	{Name: CollBattles, Model: &Battle{}, Public: true},
	{Name: CollScores, Model: &Score{}, Public: true},
	{Name: CollDeaths, Model: &Death{}, Public: true},
	{Name: CollLevelUps, Model: &LevelUp{}, Public: true},
	{Name: CollStreamCursors, Model: &StreamCursor{}, Key: []string{"name"}},
}

// Collections 所有集合
func Collections() []Collection {
	out := make([]Collection, len(collections))
	copy(out, collections)
	return out
}

// Lookup 按名称查找集合
func Lookup(name string) (Collection, bool) {
	for _, c := range collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

// AllModels 需要迁移的模型
func AllModels() []interface{} {
	out := make([]interface{}, 0, len(collections))
	for _, c := range collections {
		out = append(out, c.Model)
	}
	return out
}
