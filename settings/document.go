package settings

// GuildDocument is embedded by documents owned by a guild.
type GuildDocument struct {
	GuildID uint64 `json:"guildId,string"`
}

func (d *GuildDocument) EntityID() uint64      { return d.GuildID }
func (d *GuildDocument) SetEntityID(id uint64) { d.GuildID = id }

// UserDocument is embedded by documents owned by a user.
type UserDocument struct {
	UserID uint64 `json:"userId,string"`
}

func (d *UserDocument) EntityID() uint64      { return d.UserID }
func (d *UserDocument) SetEntityID(id uint64) { d.UserID = id }
