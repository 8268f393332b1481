package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// run test command
// go test -v          								 	for all test
// go test -v -run=TestHelloWorld 			for individual func
// go test ./...												for all test in parent folder
func TestMain(m *testing.M) {
	//before
	fmt.Println("\nSTART UNIT TEST 'helper.go'")

	m.Run()

	//after
	fmt.Println("END UNIT TEST 'helper.go'")
}

func Test_StringInSlice(t *testing.T) {
	asserts := assert.New(t)
	keys := []string{"a", "b", "c"}

	asserts.True(StringInSlice("a", keys))
	asserts.True(StringInSlice("c", keys))
	asserts.False(StringInSlice("gg", keys))
}

func Test_RequestID(t *testing.T) {
	asserts := assert.New(t)

	asserts.Equal("alice_bob", RequestID("alice", "bob"))
	asserts.Equal("bob_alice", RequestID("bob", "alice"))
}

func Test_PairKey(t *testing.T) {
	asserts := assert.New(t)

	// unordered: both directions collapse to one key
	asserts.Equal("alice_bob", PairKey("alice", "bob"))
	asserts.Equal("alice_bob", PairKey("bob", "alice"))
	asserts.NotEqual(PairKey("alice", "bob"), PairKey("alice", "carol"))
}

func Test_InputName(t *testing.T) {
	asserts := assert.New(t)
	valid, err := IsValidName("Royyan Wibisono")
	asserts.True(valid)
	asserts.Nil(err)

	valid, err = IsValidName("")
	asserts.True(!valid)
	asserts.Equal(err.Error(), "name can not empty")

	valid, err = IsValidName("01234567890123456789012345678901234567890123456789a")
	asserts.True(!valid)
	asserts.Equal(err.Error(), "name to long, max 50 characters")
}

func Test_InputEmail(t *testing.T) {
	asserts := assert.New(t)

	asserts.True(IsValidEmail("user@mail.com"))
	asserts.True(IsValidEmail("user-123@mail.com"))
	asserts.True(!IsValidEmail("qwerty"))
	asserts.True(!IsValidEmail("user123@mail"))
}

func Test_UUIDvalidate(t *testing.T) {
	asserts := assert.New(t)
	valid := IsValidUid("267f591c-3de1-4dec-819a-00fe801de8ed")
	asserts.True(valid)

	valid = IsValidUid("")
	asserts.True(!valid)
}
