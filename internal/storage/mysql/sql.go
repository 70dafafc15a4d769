package mysql

// Multi-row upserts: prefix + N value groups + suffix.
const upsertPropertiesPrefix = `
INSERT INTO properties
  (id, position, name, city, country, address, timezone, cancellation_policy, mandatory_services, active)
VALUES `

const upsertPropertiesOnDup = `
ON DUPLICATE KEY UPDATE
  position            = VALUES(position),
  name                = VALUES(name),
  city                = VALUES(city),
  country             = VALUES(country),
  address             = VALUES(address),
  timezone            = VALUES(timezone),
  cancellation_policy = VALUES(cancellation_policy),
  mandatory_services  = VALUES(mandatory_services),
  active              = VALUES(active)
`

const upsertRoomTypesPrefix = `
INSERT INTO room_types
  (id, property_id, name, type, type_description, max_adults, max_children, occupancy, inventory)
VALUES `

const upsertRoomTypesOnDup = `
ON DUPLICATE KEY UPDATE
  property_id      = VALUES(property_id),
  name             = VALUES(name),
  type             = VALUES(type),
  type_description = VALUES(type_description),
  max_adults       = VALUES(max_adults),
  max_children     = VALUES(max_children),
  occupancy        = VALUES(occupancy),
  inventory        = VALUES(inventory)
`

const upsertRateCodesPrefix = `
INSERT INTO rate_codes
  (id, property_id, position, name, valid_from, valid_to)
VALUES `

const upsertRateCodesOnDup = `
ON DUPLICATE KEY UPDATE
  property_id = VALUES(property_id),
  position    = VALUES(position),
  name        = VALUES(name),
  valid_from  = VALUES(valid_from),
  valid_to    = VALUES(valid_to)
`

const insertMissSQL = `
INSERT INTO sync_misses (property_id, resource, http_status, reason)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  http_status = VALUES(http_status),
  reason      = VALUES(reason),
  seen_at     = CURRENT_TIMESTAMP
`

const insertTurnSQL = `
INSERT INTO turns
  (id, session_id, attempt, state, intent, confidence, valid, error_kind, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const listPropertiesSQL = `
SELECT id, name, city, country, address, timezone, cancellation_policy, mandatory_services, active
FROM properties
ORDER BY position, id
`

// Room types are read in id order; the snapshot sorts them per property anyway.
const listRoomTypesSQL = `
SELECT id, property_id, name, type, type_description, max_adults, max_children, occupancy, inventory
FROM room_types
ORDER BY id
`

const listRateCodesSQL = `
SELECT id, property_id, name, valid_from, valid_to
FROM rate_codes
ORDER BY position, id
`
