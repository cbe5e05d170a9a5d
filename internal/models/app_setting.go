package models

// AppSetting is a generic key/value row. Secret values (the OpenAI API
// key) are stored encrypted.
type AppSetting struct {
	Base
	Key   string `gorm:"uniqueIndex;not null;size:100" json:"key"`
	Value string `gorm:"not null" json:"-"`
}

// SettingOpenAIKey is the settings row holding the encrypted OpenAI API key.
const SettingOpenAIKey = "openai_api_key"
