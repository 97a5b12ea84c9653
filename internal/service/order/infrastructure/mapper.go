// internal/service/order/infrastructure/mapper.go
package infrastructure

import "lensmart/internal/service/order/domain"

func toOrderModel(o *domain.Order) *OrderModel {
	m := &OrderModel{ID: o.ID, OpticianID: o.OpticianID, CreatedAt: o.CreatedAt}
	for i := range o.Items {
		it := &o.Items[i]
		m.Items = append(m.Items, OrderItemModel{
			ID:         it.ID,
			OrderID:    o.ID,
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			Status:     string(it.Status),
			Position:   i,
			ResolvedAt: it.ResolvedAt,
			ResolvedBy: it.ResolvedBy,
		})
	}
	return m
}

func toDomainItem(m *OrderItemModel) domain.OrderItem {
	return domain.OrderItem{
		ID:         m.ID,
		OrderID:    m.OrderID,
		ProductID:  m.ProductID,
		Quantity:   m.Quantity,
		UnitPrice:  m.UnitPrice,
		Status:     domain.ItemStatus(m.Status),
		ResolvedAt: m.ResolvedAt,
		ResolvedBy: m.ResolvedBy,
	}
}

func toDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{ID: m.ID, OpticianID: m.OpticianID, CreatedAt: m.CreatedAt}
	for i := range m.Items {
		o.Items = append(o.Items, toDomainItem(&m.Items[i]))
	}
	return o
}
