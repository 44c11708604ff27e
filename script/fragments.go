package script

// The four Lua fragments below are the semantic heart of the limiter: they
// run on the store as one atomic unit, so this is the only place the
// sliding-window accounting algorithm is allowed to live. Do not "improve"
// this into a true sliding log: the bucketed approximation is the
// documented contract, not a shortcut.
//
// KEYS are the prefixed identifier hashes (one or more).
// ARGV[1] = JSON-encoded rule list: [[interval, limit, precision?], ...]
// ARGV[2] = current time in seconds, sent by the client
// ARGV[3] = weight
// ARGV[4] = whitelist set key (fully qualified)
// ARGV[5] = blacklist set key (fully qualified)

// unpackArgs decodes ARGV[1] into a `rules` table of {interval, limit,
// precision} with precision clamped to min(precision or interval, interval).
const unpackArgs = `
local rules = cjson.decode(ARGV[1])
local now = tonumber(ARGV[2])
local weight = tonumber(ARGV[3])
local whitelist_key = ARGV[4]
local blacklist_key = ARGV[5]
for i, rule in ipairs(rules) do
  local interval = tonumber(rule[1])
  local limit = tonumber(rule[2])
  local precision = rule[3]
  if precision == nil then
    precision = interval
  else
    precision = tonumber(precision)
    if precision > interval then
      precision = interval
    end
  end
  rule[1] = interval
  rule[2] = limit
  rule[3] = precision
end
`

// checkWhitelistBlacklist short-circuits the whole script. Precedence is
// whitelist first: a key present in both sets is treated as whitelisted.
const checkWhitelistBlacklist = `
for _, key in ipairs(KEYS) do
  if redis.call('SISMEMBER', whitelist_key, key) == 1 then
    return 0
  elseif redis.call('SISMEMBER', blacklist_key, key) == 1 then
    return 2
  end
end
`

// ruleEffectiveCountHelper is defined once, at the head of checkLimit, and
// called by both check_limit and check_incr_limit (which always follows
// check_limit in the composed script): it reads the cumulative count field and every
// per-bucket field still present for (hashKey, interval, precision), and
// returns the count with expired buckets (index < window_start_bucket)
// subtracted off. It never writes.
const ruleEffectiveCountHelper = `
local function rl_effective_count(hash_key, interval, precision, now)
  local count_field = interval .. ':' .. precision .. ':'
  local raw = redis.call('HGET', hash_key, count_field)
  local count = tonumber(raw) or 0
  local window_start_bucket = math.floor((now - interval) / precision)
  local all = redis.call('HGETALL', hash_key)
  local expired_sum = 0
  for idx = 1, #all, 2 do
    local field = all[idx]
    local value = all[idx + 1]
    local bucket_str = field:match('^' .. count_field .. '(%d+)$')
    if bucket_str then
      local bucket = tonumber(bucket_str)
      if bucket < window_start_bucket then
        expired_sum = expired_sum + tonumber(value)
      end
    end
  end
  return count - expired_sum
end
`

// checkLimit is the read-only violation test shared by both scripts: has
// any (key, rule) pair already reached its limit? It never writes.
const checkLimit = ruleEffectiveCountHelper + `
for _, key in ipairs(KEYS) do
  for _, rule in ipairs(rules) do
    local count = rl_effective_count(key, rule[1], rule[3], now)
    if count >= rule[2] then
      return 1
    end
  end
end
`

// checkIncrLimit runs only after check_limit found no existing violation.
// It re-checks every (key, rule) pair against the weight being added
// *before* writing anything, so a denial here leaves every counter
// untouched. Only once every pair clears the weighted test does it
// perform the bucket-expiry cleanup and the increment, then refresh the
// hash's TTL to the widest configured interval.
const checkIncrLimit = `
local max_interval = 0
for _, rule in ipairs(rules) do
  if rule[1] > max_interval then
    max_interval = rule[1]
  end
end

for _, key in ipairs(KEYS) do
  for _, rule in ipairs(rules) do
    local count = rl_effective_count(key, rule[1], rule[3], now)
    if count + weight > rule[2] then
      return 1
    end
  end
end

for _, key in ipairs(KEYS) do
  for _, rule in ipairs(rules) do
    local interval, limit, precision = rule[1], rule[2], rule[3]
    local count_field = interval .. ':' .. precision .. ':'
    local now_bucket = math.floor(now / precision)
    local window_start_bucket = math.floor((now - interval) / precision)

    local all = redis.call('HGETALL', key)
    local expired_sum = 0
    for idx = 1, #all, 2 do
      local field = all[idx]
      local value = all[idx + 1]
      local bucket_str = field:match('^' .. count_field .. '(%d+)$')
      if bucket_str then
        local bucket = tonumber(bucket_str)
        if bucket < window_start_bucket then
          expired_sum = expired_sum + tonumber(value)
          redis.call('HDEL', key, field)
        end
      end
    end
    if expired_sum > 0 then
      redis.call('HINCRBY', key, count_field, -expired_sum)
    end

    redis.call('HINCRBY', key, count_field .. now_bucket, weight)
    redis.call('HINCRBY', key, count_field, weight)
    redis.call('EXPIRE', key, max_interval)
  end
end
return 0
`
