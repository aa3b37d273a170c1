package cont

import (
	"context"
	"votesecret/entity"
)

type ctxKey string

const ParticipantKey ctxKey = "participant"

func PutParticipant(c context.Context, participant *entity.Participant) context.Context {
	return context.WithValue(c, ParticipantKey, *participant)
}

// GetParticipant returns nil when the request was not authenticated as a participant
func GetParticipant(c context.Context) *entity.Participant {
	participant, ok := c.Value(ParticipantKey).(entity.Participant)
	if !ok {
		return nil
	}
	return &participant
}
