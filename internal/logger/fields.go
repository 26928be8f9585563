package logger

import "go.uber.org/zap"

func CampaignID(v string) zap.Field  { return zap.String("campaign_id", v) }
func RecordID(v string) zap.Field    { return zap.String("record_id", v) }
func RecipientID(v string) zap.Field { return zap.String("recipient_id", v) }
func SenderID(v string) zap.Field    { return zap.String("sender_id", v) }
func Email(v string) zap.Field       { return zap.String("email", v) }
func Status(v string) zap.Field      { return zap.String("status", v) }
func Topic(v string) zap.Field       { return zap.String("topic", v) }
func Err(err error) zap.Field        { return zap.Error(err) }
func MessageID(v string) zap.Field   { return zap.String("message_id", v) }
