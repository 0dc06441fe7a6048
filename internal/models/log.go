package models

import "time"

// LogRow 日志行共有字段（写入后不再修改）
type LogRow struct {
	TxHash      string    `gorm:"size:66;index" json:"tx_hash"`
	BlockNumber uint64    `gorm:"index" json:"block_number"`
	EventIndex  int       `json:"event_index"`
	Timestamp   time.Time `json:"timestamp"`
}

// Discovery 发现记录，所有发现类型共用的宽行，不相关的数值字段为0，不相关的引用为NULL
type Discovery struct {
	BaseModel
	AdventurerID       string    `gorm:"index:idx_discovery_encounter,priority:2;size:66;not null" json:"adventurer_id"`
	AdventurerHealth   int       `json:"adventurer_health"`
	DiscoveryType      string    `gorm:"size:16;index" json:"discovery_type"` // beast, obstacle, item
	SubDiscoveryType   *string   `gorm:"size:16" json:"sub_discovery_type"`   // health, gold, xp
	OutputAmount       int       `json:"output_amount"`
	Obstacle           *int      `json:"obstacle"`
	ObstacleLevel      int       `json:"obstacle_level"`
	DodgedObstacle     bool      `json:"dodged_obstacle"`
	DamageTaken        int       `json:"damage_taken"`
	DamageLocation     *int      `json:"damage_location"`
	CriticalHit        bool      `json:"critical_hit"`
	XPEarnedAdventurer int       `gorm:"column:xp_earned_adventurer" json:"xp_earned_adventurer"`
	XPEarnedItems      int       `gorm:"column:xp_earned_items" json:"xp_earned_items"`
	Entity             *int      `gorm:"index:idx_discovery_encounter,priority:1" json:"entity"`
	EntityLevel        int       `json:"entity_level"`
	EntityHealth       int       `json:"entity_health"`
	EntityTier         int       `json:"entity_tier"`
	Special1           *int      `json:"special1"`
	Special2           *int      `json:"special2"`
	Special3           *int      `json:"special3"`
	Ambushed           bool      `json:"ambushed"`
	Seed               *string   `gorm:"index:idx_discovery_encounter,priority:3;size:66" json:"seed"`
	DiscoveryTime      time.Time `gorm:"index" json:"discovery_time"`
	LogRow
}

// TableName 指定表名
func (Discovery) TableName() string { return CollDiscoveries }

// Battle 战斗记录，discovery_time 取自发起该遭遇的发现记录
type Battle struct {
	BaseModel
	AdventurerID       string    `gorm:"index;size:66;not null" json:"adventurer_id"`
	AdventurerHealth   int       `json:"adventurer_health"`
	Beast              *int      `gorm:"index" json:"beast"`
	BeastHealth        int       `json:"beast_health"`
	BeastLevel         int       `json:"beast_level"`
	Special1           *int      `json:"special1"`
	Special2           *int      `json:"special2"`
	Special3           *int      `json:"special3"`
	Seed               *string   `gorm:"size:66" json:"seed"`
	Attacker           string    `gorm:"size:16;index" json:"attacker"` // adventurer, beast, penalty
	Fled               bool      `json:"fled"`
	DamageDealt        int       `json:"damage_dealt"`
	CriticalHit        bool      `json:"critical_hit"`
	DamageTaken        int       `json:"damage_taken"`
	DamageLocation     *int      `json:"damage_location"`
	XPEarnedAdventurer int       `gorm:"column:xp_earned_adventurer" json:"xp_earned_adventurer"`
	XPEarnedItems      int       `gorm:"column:xp_earned_items" json:"xp_earned_items"`
	GoldEarned         int       `json:"gold_earned"`
	DiscoveryTime      time.Time `gorm:"index" json:"discovery_time"`
	BlockTime          time.Time `json:"block_time"`
	LogRow
}

// TableName 指定表名
func (Battle) TableName() string { return CollBattles }

// Score 高分记录
type Score struct {
	BaseModel
	AdventurerID string    `gorm:"index;size:66;not null" json:"adventurer_id"`
	Owner        string    `gorm:"size:66" json:"owner"`
	Rank         int       `json:"rank"`
	XP           int       `gorm:"column:xp" json:"xp"`
	Prize        string    `gorm:"size:66" json:"prize"`
	ScoreTime    time.Time `gorm:"index" json:"score_time"`
	LogRow
}

// TableName 指定表名
func (Score) TableName() string { return CollScores }

// Death 死亡记录
type Death struct {
	BaseModel
	AdventurerID     string    `gorm:"index;size:66;not null" json:"adventurer_id"`
	Owner            string    `gorm:"size:66" json:"owner"`
	KilledByBeast    *int      `json:"killed_by_beast"`
	KilledByObstacle *int      `json:"killed_by_obstacle"`
	Caller           string    `gorm:"size:66" json:"caller"`
	XP               int       `gorm:"column:xp" json:"xp"`
	Gold             int       `json:"gold"`
	DeathTime        time.Time `gorm:"index" json:"death_time"`
	LogRow
}

// TableName 指定表名
func (Death) TableName() string { return CollDeaths }

// LevelUp 升级记录
type LevelUp struct {
	BaseModel
	AdventurerID  string    `gorm:"index;size:66;not null" json:"adventurer_id"`
	PreviousLevel int       `json:"previous_level"`
	NewLevel      int       `json:"new_level"`
	XP            int       `gorm:"column:xp" json:"xp"`
	LevelTime     time.Time `json:"level_time"`
	LogRow
}

// TableName 指定表名
func (LevelUp) TableName() string { return CollLevelUps }

// StreamCursor 事件流检查点（最后完整应用的区块）
type StreamCursor struct {
	BaseModel
	Name        string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	BlockNumber uint64    `json:"block_number"`
	BlockHash   string    `gorm:"size:66" json:"block_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (StreamCursor) TableName() string { return CollStreamCursors }
