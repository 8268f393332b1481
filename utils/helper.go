package utils

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/lucsky/cuid"
	"go.mongodb.org/mongo-driver/bson"
)

func ToDoc(v interface{}) (doc *bson.D, err error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return
	}

	err = bson.Unmarshal(data, &doc)
	return
}

func StringInSlice(a string, list []string) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}

func ToRawMessage(s interface{}) (json.RawMessage, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func GetRandomUUID() string {
	return uuid.NewString()
}

// NewCUID returns a collision-resistant id for generated records
// (messages, notifications). Deterministic ids are built with RequestID
// and PairKey instead.
func NewCUID() string {
	return cuid.New()
}

// RequestID is the deterministic id of a friend request for an ordered
// pair: at most one pending request per direction can ever exist.
func RequestID(fromUID, toUID string) string {
	return fromUID + "_" + toUID
}

// PairKey is the deterministic id for an unordered pair of user ids,
// shared by friendship records and direct chat rooms.
func PairKey(aUID, bUID string) string {
	pair := []string{aUID, bUID}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

func IsValidName(s string) (bool, error) {
	if len(s) == 0 {
		return false, errors.New("name can not empty")
	}

	if len(s) > 50 {
		return false, errors.New("name to long, max 50 characters")
	}

	return true, nil
}

func IsValidEmail(s string) bool {
	return govalidator.IsEmail(s)
}

func IsValidUid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
