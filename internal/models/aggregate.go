package models

import "time"

// Adventurer 冒险者（每个 adventurer_id 一行）
type Adventurer struct {
	BaseModel
	AdventurerID string     `gorm:"uniqueIndex;size:66;not null" json:"adventurer_id"`
	Owner        string     `gorm:"index;size:66" json:"owner"`
	Name         string     `gorm:"size:31" json:"name"`
	StartBlock   string     `gorm:"size:66" json:"start_block"`  // u64，定宽十六进制
	RevealBlock  string     `gorm:"size:66" json:"reveal_block"` // u64，定宽十六进制
	StartTime    *time.Time `json:"start_time"`
	LastAction   int        `json:"last_action"`
	Health       int        `gorm:"index" json:"health"`
	XP           int        `gorm:"column:xp;index" json:"xp"`
	Strength     int        `json:"strength"`
	Dexterity    int        `json:"dexterity"`
	Vitality     int        `json:"vitality"`
	Intelligence int        `json:"intelligence"`
	Wisdom       int        `json:"wisdom"`
	Charisma     int        `json:"charisma"`
	Luck         int        `json:"luck"`
	Gold         int        `json:"gold"`
	Weapon       *int       `json:"weapon"`
	Chest        *int       `json:"chest"`
	Head         *int       `json:"head"`
	Waist        *int       `json:"waist"`
	Foot         *int       `json:"foot"`
	Hand         *int       `json:"hand"`
	Neck         *int       `json:"neck"`
	Ring         *int       `json:"ring"`
	BeastHealth  int        `json:"beast_health"`
	StatUpgrades int        `json:"stat_upgrades"`
	Tracked
}

// TableName 指定表名
func (Adventurer) TableName() string { return CollAdventurers }

// Item 物品（每个 item_id + adventurer_id 一行）
type Item struct {
	BaseModel
	ItemID        int        `gorm:"uniqueIndex:idx_item_adventurer;not null" json:"item_id"`
	AdventurerID  string     `gorm:"uniqueIndex:idx_item_adventurer;size:66;not null" json:"adventurer_id"`
	Owner         bool       `gorm:"index" json:"owner"`
	Equipped      bool       `gorm:"index" json:"equipped"`
	OwnerAddress  *string    `gorm:"size:66" json:"owner_address"`
	Tier          int        `json:"tier"`
	ItemType      int        `json:"item_type"`
	Slot          int        `json:"slot"`
	Special1      *int       `json:"special1"`
	Special2      *int       `json:"special2"`
	Special3      *int       `json:"special3"`
	XP            int        `gorm:"column:xp" json:"xp"`
	Cost          int        `json:"cost"`
	PurchasedTime *time.Time `json:"purchased_time"`
	CreatedTime   time.Time  `gorm:"index" json:"created_time"`
	Tracked
}

// TableName 指定表名
func (Item) TableName() string { return CollItems }

// Bag 背包（整体覆盖）
type Bag struct {
	BaseModel
	AdventurerID string `gorm:"uniqueIndex;size:66;not null" json:"adventurer_id"`
	Item1        *int   `gorm:"column:item1" json:"item1"`
	Item2        *int   `gorm:"column:item2" json:"item2"`
	Item3        *int   `gorm:"column:item3" json:"item3"`
	Item4        *int   `gorm:"column:item4" json:"item4"`
	Item5        *int   `gorm:"column:item5" json:"item5"`
	Item6        *int   `gorm:"column:item6" json:"item6"`
	Item7        *int   `gorm:"column:item7" json:"item7"`
	Item8        *int   `gorm:"column:item8" json:"item8"`
	Item9        *int   `gorm:"column:item9" json:"item9"`
	Item10       *int   `gorm:"column:item10" json:"item10"`
	Item11       *int   `gorm:"column:item11" json:"item11"`
	Mutated      bool   `json:"mutated"`
	Tracked
}

// TableName 指定表名
func (Bag) TableName() string { return CollBags }

// Beast 野兽遭遇（每个 beast + adventurer_id + seed 一行）
type Beast struct {
	BaseModel
	Beast        int        `gorm:"uniqueIndex:idx_beast_encounter;not null" json:"beast"`
	AdventurerID string     `gorm:"uniqueIndex:idx_beast_encounter;size:66;not null" json:"adventurer_id"`
	Seed         string     `gorm:"uniqueIndex:idx_beast_encounter;size:66;not null" json:"seed"`
	Level        int        `json:"level"`
	Tier         int        `json:"tier"`
	Special1     *int       `json:"special1"`
	Special2     *int       `json:"special2"`
	Special3     *int       `json:"special3"`
	Health       int        `json:"health"`
	SlainOnTime  *time.Time `json:"slain_on_time"`
	CreatedTime  time.Time  `json:"created_time"`
	Tracked
}

// TableName 指定表名
func (Beast) TableName() string { return CollBeasts }
