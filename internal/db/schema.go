package db

// schema creates the current compute_nodes layout and upgrades tables
// created before the host column existed. Rows written before the upgrade
// keep a NULL host; the object layer derives it from the owning service.
const schema = `
CREATE TABLE IF NOT EXISTS compute_nodes (
    id                   BIGSERIAL PRIMARY KEY,
    service_id           BIGINT,
    host                 TEXT,
    vcpus                BIGINT,
    memory_mb            BIGINT,
    local_gb             BIGINT,
    vcpus_used           BIGINT,
    memory_mb_used       BIGINT,
    local_gb_used        BIGINT,
    hypervisor_type      TEXT,
    hypervisor_version   BIGINT,
    hypervisor_hostname  TEXT,
    free_ram_mb          BIGINT,
    free_disk_gb         BIGINT,
    current_workload     BIGINT,
    running_vms          BIGINT,
    cpu_info             TEXT,
    disk_available_least BIGINT,
    metrics              TEXT,
    stats                TEXT,
    host_ip              TEXT,
    numa_topology        TEXT,
    supported_instances  TEXT,
    pci_stats            TEXT,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ,
    deleted_at           TIMESTAMPTZ,
    deleted              BOOLEAN NOT NULL DEFAULT FALSE
);

ALTER TABLE compute_nodes ADD COLUMN IF NOT EXISTS host TEXT;

CREATE INDEX IF NOT EXISTS idx_compute_nodes_host_node
    ON compute_nodes(host, hypervisor_hostname);
CREATE INDEX IF NOT EXISTS idx_compute_nodes_service
    ON compute_nodes(service_id);
`

// legacySchema is the layout before the host column. Kept for tests that
// exercise the upgrade path against a real server.
const legacySchema = `
CREATE TABLE IF NOT EXISTS compute_nodes (
    id                   BIGSERIAL PRIMARY KEY,
    service_id           BIGINT,
    vcpus                BIGINT,
    memory_mb            BIGINT,
    local_gb             BIGINT,
    vcpus_used           BIGINT,
    memory_mb_used       BIGINT,
    local_gb_used        BIGINT,
    hypervisor_type      TEXT,
    hypervisor_version   BIGINT,
    hypervisor_hostname  TEXT,
    free_ram_mb          BIGINT,
    free_disk_gb         BIGINT,
    current_workload     BIGINT,
    running_vms          BIGINT,
    cpu_info             TEXT,
    disk_available_least BIGINT,
    metrics              TEXT,
    stats                TEXT,
    host_ip              TEXT,
    numa_topology        TEXT,
    supported_instances  TEXT,
    pci_stats            TEXT,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ,
    deleted_at           TIMESTAMPTZ,
    deleted              BOOLEAN NOT NULL DEFAULT FALSE
);
`

const hostColumnQuery = `
SELECT EXISTS (
    SELECT 1 FROM information_schema.columns
    WHERE table_schema = current_schema()
      AND table_name = 'compute_nodes'
      AND column_name = 'host'
)`
