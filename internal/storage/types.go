package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Fixed keys of the local bucket.
var (
	keyAuth     = []byte("connectifyr_auth")
	keyUser     = []byte("connectifyr_user")
	keyContacts = []byte("connectifyr_contacts")
	keyChats    = []byte("connectifyr_chats")
	keyToken    = []byte("connectifyr_token")
	keyPush     = []byte("connectifyr_push")
)

type DBAuth struct {
	Authenticated bool `msgpack:"authenticated"`
	Remember      bool `msgpack:"remember"`
}

func (a *DBAuth) Key() []byte {
	return keyAuth
}

func (a *DBAuth) MarshalBinary() (data []byte, err error) {
	type alias DBAuth
	return msgpack.Marshal((*alias)(a))
}

func (a *DBAuth) UnmarshalBinary(data []byte) error {
	type alias DBAuth
	return msgpack.Unmarshal(data, (*alias)(a))
}

type DBProfile struct {
	Email     string `msgpack:"email"`
	Name      string `msgpack:"name"`
	AvatarURL string `msgpack:"avatarUrl"`
}

func (p *DBProfile) Key() []byte {
	return keyUser
}

func (p *DBProfile) MarshalBinary() (data []byte, err error) {
	type alias DBProfile
	return msgpack.Marshal((*alias)(p))
}

func (p *DBProfile) UnmarshalBinary(data []byte) error {
	type alias DBProfile
	return msgpack.Unmarshal(data, (*alias)(p))
}

type DBContact struct {
	ID          string `msgpack:"id"`
	Email       string `msgpack:"email"`
	Name        string `msgpack:"name"`
	AvatarURL   string `msgpack:"avatarUrl"`
	Status      string `msgpack:"status"`
	LastMessage string `msgpack:"lastMessage"`
	LastActive  int64  `msgpack:"lastActive"`
}

type DBContactList struct {
	Contacts []DBContact `msgpack:"contacts"`
}

func (l *DBContactList) Key() []byte {
	return keyContacts
}

func (l *DBContactList) MarshalBinary() (data []byte, err error) {
	type alias DBContactList
	return msgpack.Marshal((*alias)(l))
}

func (l *DBContactList) UnmarshalBinary(data []byte) error {
	type alias DBContactList
	return msgpack.Unmarshal(data, (*alias)(l))
}

type DBMessage struct {
	ID          string `msgpack:"id"`
	SenderID    string `msgpack:"senderId"`
	Timestamp   int64  `msgpack:"timestamp"`
	Status      string `msgpack:"status"`
	Kind        string `msgpack:"kind"`
	Text        string `msgpack:"text,omitempty"`
	HTML        string `msgpack:"html,omitempty"`
	MediaURL    string `msgpack:"mediaUrl,omitempty"`
	MimeType    string `msgpack:"mimeType,omitempty"`
	FileName    string `msgpack:"fileName,omitempty"`
	DurationSec int    `msgpack:"durationSec,omitempty"`
}

type DBChatHistories struct {
	Chats map[string][]DBMessage `msgpack:"chats"`
}

func (h *DBChatHistories) Key() []byte {
	return keyChats
}

func (h *DBChatHistories) MarshalBinary() (data []byte, err error) {
	type alias DBChatHistories
	return msgpack.Marshal((*alias)(h))
}

func (h *DBChatHistories) UnmarshalBinary(data []byte) error {
	type alias DBChatHistories
	return msgpack.Unmarshal(data, (*alias)(h))
}

type DBToken struct {
	Hash      string `msgpack:"hash"`
	ExpiresAt int64  `msgpack:"expiresAt"`
}

func (t *DBToken) Key() []byte {
	return keyToken
}

func (t *DBToken) MarshalBinary() (data []byte, err error) {
	type alias DBToken
	return msgpack.Marshal((*alias)(t))
}

func (t *DBToken) UnmarshalBinary(data []byte) error {
	type alias DBToken
	return msgpack.Unmarshal(data, (*alias)(t))
}

type DBPushSubscription struct {
	Endpoint string `msgpack:"endpoint"`
	P256dh   string `msgpack:"p256dh"`
	Auth     string `msgpack:"auth"`
}

type DBPushSubscriptions struct {
	Subscriptions []DBPushSubscription `msgpack:"subscriptions"`
}

func (s *DBPushSubscriptions) Key() []byte {
	return keyPush
}

func (s *DBPushSubscriptions) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscriptions
	return msgpack.Marshal((*alias)(s))
}

func (s *DBPushSubscriptions) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscriptions
	return msgpack.Unmarshal(data, (*alias)(s))
}
