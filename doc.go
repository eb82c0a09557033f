// Package forge registers bun databases and hands out units of work.
//
//	reg, err := forge.LoadInMemoryDatabase(ctx, "orders", func(o *database.Options) {
//		o.WithModels((*Order)(nil))
//	})
//	if err != nil {
//		return err
//	}
//	defer reg.Close()
//
//	uow := reg.Scoped()
//	orders := repository.NewRepository[Order](uow)
//	_ = orders.Add(&Order{Total: 12})
//	err = uow.Save(session.With(ctx, tenantID, userID))
package forge
