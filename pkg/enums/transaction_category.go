package enums

// TransactionCategory classifies why a wallet balance moved.
type TransactionCategory string

const (
	TransactionCategoryDeposit     TransactionCategory = "deposit"
	TransactionCategoryWithdrawal  TransactionCategory = "withdrawal"
	TransactionCategoryPurchase    TransactionCategory = "purchase"
	TransactionCategorySale        TransactionCategory = "sale"
	TransactionCategoryRefund      TransactionCategory = "refund"
	TransactionCategoryTransferIn  TransactionCategory = "transfer_in"
	TransactionCategoryTransferOut TransactionCategory = "transfer_out"
	TransactionCategoryFreeze      TransactionCategory = "freeze"
	TransactionCategoryUnfreeze    TransactionCategory = "unfreeze"
	TransactionCategoryAdjustment  TransactionCategory = "adjustment"
)

var validTransactionCategories = []TransactionCategory{
	TransactionCategoryDeposit,
	TransactionCategoryWithdrawal,
	TransactionCategoryPurchase,
	TransactionCategorySale,
	TransactionCategoryRefund,
	TransactionCategoryTransferIn,
	TransactionCategoryTransferOut,
	TransactionCategoryFreeze,
	TransactionCategoryUnfreeze,
	TransactionCategoryAdjustment,
}

// String implements fmt.Stringer.
func (c TransactionCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known TransactionCategory.
func (c TransactionCategory) IsValid() bool {
	for _, candidate := range validTransactionCategories {
		if candidate == c {
			return true
		}
	}
	return false
}
