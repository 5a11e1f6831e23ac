package database

// Repositories holds one repository per table, constructed once and shared
// across requests (grounded on the teacher's pkg/database/repositories.go).
type Repositories struct {
	Users         *UserRepository
	Transactions  *TransactionRepository
	Outputs       *OutputRepository
	Baskets       *BasketRepository
	Tags          *TagRepository
	Labels        *LabelRepository
	ProvenTxs     *ProvenTxRepository
	ProvenTxReqs  *ProvenTxReqRepository
	Certificates  *CertificateRepository
	Commissions   *CommissionRepository
	MonitorEvents *MonitorEventRepository
	SyncStates    *SyncStateRepository
	Settings      *SettingsRepository
}

// NewRepositories wires every repository to the same connection pool.
func NewRepositories(client *Client) *Repositories {
	return &Repositories{
		Users:         NewUserRepository(client),
		Transactions:  NewTransactionRepository(client),
		Outputs:       NewOutputRepository(client),
		Baskets:       NewBasketRepository(client),
		Tags:          NewTagRepository(client),
		Labels:        NewLabelRepository(client),
		ProvenTxs:     NewProvenTxRepository(client),
		ProvenTxReqs:  NewProvenTxReqRepository(client),
		Certificates:  NewCertificateRepository(client),
		Commissions:   NewCommissionRepository(client),
		MonitorEvents: NewMonitorEventRepository(client),
		SyncStates:    NewSyncStateRepository(client),
		Settings:      NewSettingsRepository(client),
	}
}
