package modules

import (
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/wxstatusd/internal/kv"
)

const bucketTypeName = "kv_bucket"

// ScriptBucketPrefix keeps script buckets apart from the daemon's own.
const ScriptBucketPrefix = "script_"

// KVModule provides persistent key-value buckets to Lua.
type KVModule struct {
	manager *kv.Manager
}

// NewKVModule creates a new KV module.
func NewKVModule(manager *kv.Manager) *KVModule {
	return &KVModule{manager: manager}
}

// Loader is the module loader for Lua.
func (m *KVModule) Loader(L *lua.LState) int {
	mt := L.NewTypeMetatable(bucketTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), bucketMethods))

	mod := L.NewTable()
	L.SetField(mod, "bucket", L.NewFunction(m.bucket))
	L.SetField(mod, "drop", L.NewFunction(m.drop))

	L.Push(mod)
	return 1
}

// bucket(name) -> Bucket
func (m *KVModule) bucket(L *lua.LState) int {
	name := L.CheckString(1)

	ud := L.NewUserData()
	ud.Value = m.manager.Bucket(ScriptBucketPrefix + name)
	L.SetMetatable(ud, L.GetTypeMetatable(bucketTypeName))

	L.Push(ud)
	return 1
}

// drop(name) -> bool
func (m *KVModule) drop(L *lua.LState) int {
	name := L.CheckString(1)

	deleted, err := m.manager.Delete(ScriptBucketPrefix + name)
	if err != nil {
		log.Warn().Err(err).Str("bucket", name).Msg("Failed to drop bucket")
	}
	L.Push(lua.LBool(deleted))
	return 1
}

var bucketMethods = map[string]lua.LGFunction{
	"set":    bucketSet,
	"get":    bucketGet,
	"exists": bucketExists,
	"delete": bucketDelete,
	"keys":   bucketKeys,
	"clear":  bucketClear,
}

func checkBucket(L *lua.LState) kv.Bucket {
	ud := L.CheckUserData(1)
	if bucket, ok := ud.Value.(kv.Bucket); ok {
		return bucket
	}
	L.ArgError(1, "bucket expected")
	return nil
}

// bucket:set(key, value)
func bucketSet(L *lua.LState) int {
	bucket := checkBucket(L)
	key := L.CheckString(2)

	if err := bucket.Put(key, LuaToGo(L.Get(3))); err != nil {
		L.RaiseError("kv set %s/%s: %s", bucket.Name(), key, err.Error())
	}
	return 0
}

// bucket:get(key) -> value | nil
func bucketGet(L *lua.LState) int {
	bucket := checkBucket(L)
	key := L.CheckString(2)

	var value any
	found, err := bucket.Load(key, &value)
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucket.Name()).Str("key", key).Msg("Failed to get value")
	}
	if !found || err != nil {
		L.Push(lua.LNil)
		return 1
	}

	L.Push(GoToLuaValue(L, value))
	return 1
}

// bucket:exists(key) -> bool
func bucketExists(L *lua.LState) int {
	bucket := checkBucket(L)
	exists, err := bucket.Exists(L.CheckString(2))
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucket.Name()).Msg("Failed to check key")
	}
	L.Push(lua.LBool(exists))
	return 1
}

// bucket:delete(key) -> bool
func bucketDelete(L *lua.LState) int {
	bucket := checkBucket(L)
	deleted, err := bucket.Delete(L.CheckString(2))
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucket.Name()).Msg("Failed to delete key")
	}
	L.Push(lua.LBool(deleted))
	return 1
}

// bucket:keys() -> array
func bucketKeys(L *lua.LState) int {
	bucket := checkBucket(L)
	keys, err := bucket.Keys()
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucket.Name()).Msg("Failed to list keys")
	}
	L.Push(GoToLuaValue(L, keys))
	return 1
}

// bucket:clear()
func bucketClear(L *lua.LState) int {
	bucket := checkBucket(L)
	if err := bucket.Clear(); err != nil {
		log.Warn().Err(err).Str("bucket", bucket.Name()).Msg("Failed to clear bucket")
	}
	return 0
}
