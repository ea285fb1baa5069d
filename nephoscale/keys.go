package nephoscale

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"

	gocontext "context"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/pkg/errors"
)

// Key groups distinguish server login keys from console password keys.
const (
	KeyGroupServer  = 1
	KeyGroupConsole = 4
)

const (
	randomPasswordLength = 8
	passwordAlphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Key is a credential record. The API's key records are passed through
// untouched; accessors read the handful of fields callers care about
// and Raw exposes the rest.
type Key struct {
	raw *simplejson.Json
}

func (k *Key) ID() string {
	if id, err := k.raw.Get("id").Int64(); err == nil {
		return strconv.FormatInt(id, 10)
	}
	return k.raw.Get("id").MustString()
}

func (k *Key) Name() string {
	return k.raw.Get("name").MustString()
}

func (k *Key) Group() int {
	return k.raw.Get("key_group").MustInt()
}

func (k *Key) Raw() *simplejson.Json {
	return k.raw
}

// ListAllKeys lists both server and console keys. A non-zero keyGroup
// filters client-side on key group equality.
func (d *Driver) ListAllKeys(ctx gocontext.Context, keyGroup int) ([]*Key, error) {
	keys, err := d.listKeys(ctx, "/key/")
	if err != nil {
		return nil, err
	}

	if keyGroup == 0 {
		return keys, nil
	}

	filtered := []*Key{}
	for _, key := range keys {
		if key.Group() == keyGroup {
			filtered = append(filtered, key)
		}
	}
	return filtered, nil
}

// ListSSHKeys lists the registered SSH public keys.
func (d *Driver) ListSSHKeys(ctx gocontext.Context) ([]*Key, error) {
	return d.listKeys(ctx, "/key/sshrsa/")
}

// ListPasswordKeys lists the registered password keys.
func (d *Driver) ListPasswordKeys(ctx gocontext.Context) ([]*Key, error) {
	return d.listKeys(ctx, "/key/password/")
}

func (d *Driver) listKeys(ctx gocontext.Context, path string) ([]*Key, error) {
	env, err := d.client.request(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	return decodeKeys(env.Data)
}

// AddSSHKey registers an SSH public key under the server key group and
// returns the provider-assigned id, empty if the response carries none.
func (d *Driver) AddSSHKey(ctx gocontext.Context, name, publicKey string) (string, error) {
	form := url.Values{
		"name":       {name},
		"public_key": {publicKey},
		"key_group":  {strconv.Itoa(KeyGroupServer)},
	}
	return d.addKey(ctx, "/key/sshrsa/", form)
}

// AddPasswordKey registers a console password key and returns the
// provider-assigned id. When password is empty a throwaway 8-character
// one is generated from lowercase letters and digits; it is not
// cryptographically strong and only fit for bootstrap credentials.
func (d *Driver) AddPasswordKey(ctx gocontext.Context, name, password string) (string, error) {
	if password == "" {
		password = randomPassword(randomPasswordLength)
	}

	form := url.Values{
		"name":      {name},
		"password":  {password},
		"key_group": {strconv.Itoa(KeyGroupConsole)},
	}
	return d.addKey(ctx, "/key/password/", form)
}

func (d *Driver) addKey(ctx gocontext.Context, path string, form url.Values) (string, error) {
	env, err := d.client.request(ctx, "POST", path, form)
	if err != nil {
		return "", err
	}

	if len(env.Data) == 0 {
		return "", nil
	}

	record, err := simplejson.NewJson(env.Data)
	if err != nil {
		return "", errors.Wrap(err, "couldn't decode key record")
	}

	return (&Key{raw: record}).ID(), nil
}

// DeleteSSHKey deletes an SSH key by id.
func (d *Driver) DeleteSSHKey(ctx gocontext.Context, keyID string) (bool, error) {
	return d.deleteKey(ctx, fmt.Sprintf("/key/sshrsa/%s/", keyID))
}

// DeletePasswordKey deletes a password key by id.
func (d *Driver) DeletePasswordKey(ctx gocontext.Context, keyID string) (bool, error) {
	return d.deleteKey(ctx, fmt.Sprintf("/key/password/%s/", keyID))
}

func (d *Driver) deleteKey(ctx gocontext.Context, path string) (bool, error) {
	env, err := d.client.request(ctx, "DELETE", path, nil)
	if err != nil {
		return false, err
	}
	return env.ok(), nil
}

func decodeKeys(data json.RawMessage) ([]*Key, error) {
	keys := []*Key{}
	if len(data) == 0 {
		return keys, nil
	}

	parsed, err := simplejson.NewJson(data)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't decode key records")
	}

	records, err := parsed.Array()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't decode key records")
	}

	for i := range records {
		keys = append(keys, &Key{raw: parsed.GetIndex(i)})
	}
	return keys, nil
}

func randomPassword(length int) string {
	password := make([]byte, length)
	for i := range password {
		password[i] = passwordAlphabet[rand.Intn(len(passwordAlphabet))]
	}
	return string(password)
}
